// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	"github.com/redis/go-redis/v9"
	"github.com/veil-chat/veil/internal/app/store/emailverify"
	"github.com/veil-chat/veil/internal/app/store/rtstore/memstore"
	"github.com/veil-chat/veil/internal/app/store/rtstore/mongostore"
	"github.com/veil-chat/veil/internal/app/store/rtstore/redisstore"
	userstore "github.com/veil-chat/veil/internal/app/store/users"
	"github.com/veil-chat/veil/internal/app/system/validators"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB establishes the MongoDB connection and builds the
// realtime store backend selected by store_backend.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}

	switch appCfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory realtime store; data is lost on restart")
		deps.RTStore = memstore.New()

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return DBDeps{}, fmt.Errorf("ping redis: %w", err)
		}
		deps.Redis = rdb
		deps.RTStore = redisstore.New(rdb, logger)

	case "mongo":
		deps.RTStore = mongostore.New(deps.MongoDatabase, logger)
	}

	logger.Info("realtime store ready", zap.String("backend", appCfg.StoreBackend))
	return deps, nil
}

// EnsureSchema sets up collections, validators, and indexes.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		return fmt.Errorf("collection validators: %w", err)
	}
	if err := userstore.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	if err := emailverify.New(deps.MongoDatabase, appCfg.EmailVerifyExpiry).EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("email verification indexes: %w", err)
	}
	return nil
}
