// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
// Extend this struct as your app evolves.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Redis is nil unless the redis store backend is configured.
	Redis *redis.Client

	// RTStore is the realtime document store behind groups and
	// messages, selected by store_backend.
	RTStore rtstore.Store
}
