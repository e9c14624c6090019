// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (HTTP/HTTPS
// ports, TLS, logging level, CORS, request limits); AppConfig is
// everything specific to Veil. Add fields here as the app grows; the
// struct is passed to most lifecycle hooks.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionDomain string // Cookie domain (blank means current host)

	// Realtime store configuration
	StoreBackend  string // "memory", "redis", or "mongo"
	RedisAddr     string // Redis address (host:port), required for the redis backend
	RedisPassword string

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (blank logs emails instead of sending)
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string // From email address (e.g., noreply@veil.chat)

	// Base URL for email links (magic links)
	BaseURL  string // e.g., "https://veil.chat" or "http://localhost:3000"
	SiteName string // Display name used in outbound email

	// Email verification settings
	EmailVerifyExpiry time.Duration

	// Stream ticket settings (websocket attach)
	StreamTicketSecret string
	StreamTicketTTL    time.Duration
}
