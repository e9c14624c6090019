// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Veil.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, store_backend, etc.
//   - Environment variables: VEIL_MONGO_URI, VEIL_STORE_BACKEND, etc.
//   - Command-line flags: --mongo_uri, --store_backend, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "veil", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Realtime store configuration
	{Name: "store_backend", Default: "mongo", Desc: "Realtime store backend: 'memory', 'redis', or 'mongo'"},
	{Name: "redis_addr", Default: "localhost:6379", Desc: "Redis address for the redis backend"},
	{Name: "redis_password", Default: "", Desc: "Redis password (blank for none)"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank logs emails instead of sending)"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@veil.chat", Desc: "From email address"},

	// Base URL for email links (magic links)
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for email links"},
	{Name: "site_name", Default: "Veil", Desc: "Display name used in outbound email"},

	// Email verification settings
	{Name: "email_verify_expiry", Default: "10m", Desc: "Email verification code/link expiry (e.g., 10m, 1h, 90s)"},

	// Stream ticket settings
	{Name: "stream_ticket_secret", Default: "", Desc: "HMAC secret for websocket stream tickets (defaults to session_key)"},
	{Name: "stream_ticket_ttl", Default: "60s", Desc: "Websocket stream ticket lifetime"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// environment variables (WAFFLE_* for core, VEIL_* for app) and
// command-line flags, with precedence: flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "VEIL", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionDomain:    appValues.String("session_domain"),

		StoreBackend:  appValues.String("store_backend"),
		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),

		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),

		BaseURL:  appValues.String("base_url"),
		SiteName: appValues.String("site_name"),

		EmailVerifyExpiry: appValues.Duration("email_verify_expiry", 10*time.Minute),

		StreamTicketSecret: appValues.String("stream_ticket_secret"),
		StreamTicketTTL:    appValues.Duration("stream_ticket_ttl", 60*time.Second),
	}

	// The ticket secret can piggyback on the session key; a separate
	// secret only matters if the two need independent rotation.
	if appCfg.StreamTicketSecret == "" {
		appCfg.StreamTicketSecret = appCfg.SessionKey
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort
// startup. Veil validates the MongoDB URI format and the store
// backend selection early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	switch appCfg.StoreBackend {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("store_backend must be 'memory', 'redis', or 'mongo' (got %q)", appCfg.StoreBackend)
	}

	if appCfg.StoreBackend == "redis" && appCfg.RedisAddr == "" {
		return fmt.Errorf("redis store backend requires redis_addr")
	}

	return nil
}
