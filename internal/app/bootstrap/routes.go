// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/veil-chat/veil/internal/app/engine"
	authapifeature "github.com/veil-chat/veil/internal/app/features/authapi"
	chatapifeature "github.com/veil-chat/veil/internal/app/features/chatapi"
	healthfeature "github.com/veil-chat/veil/internal/app/features/health"
	streamfeature "github.com/veil-chat/veil/internal/app/features/stream"
	"github.com/veil-chat/veil/internal/app/store/emailverify"
	userstore "github.com/veil-chat/veil/internal/app/store/users"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"github.com/veil-chat/veil/internal/app/system/mailer"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. Veil mounts three surfaces:
//   - /api/auth: signup, login, verification, stream tickets
//   - /api: group and message operations (verified sessions only)
//   - /stream: the websocket carrying live group and message updates
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	if err := auth.InitSessionStore(appCfg.SessionKey, appCfg.SessionDomain, secure, logger); err != nil {
		logger.Error("session store init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser fetches fresh user data on each request, so a
	// verification completed in one tab takes effect everywhere
	// immediately.
	auth.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase))

	tickets, err := auth.NewTicketIssuer(appCfg.StreamTicketSecret, appCfg.StreamTicketTTL)
	if err != nil {
		logger.Error("ticket issuer init failed", zap.Error(err))
		return nil, err
	}

	var mail mailer.Sender
	if appCfg.MailSMTPHost != "" {
		mail = mailer.New(appCfg.MailSMTPHost, appCfg.MailSMTPPort,
			appCfg.MailSMTPUser, appCfg.MailSMTPPass, appCfg.MailFrom)
	} else {
		logger.Warn("no SMTP host configured; verification emails will be logged")
		mail = mailer.LogSender{Log: logger}
	}

	users := userstore.New(deps.MongoDatabase)
	verify := emailverify.New(deps.MongoDatabase, appCfg.EmailVerifyExpiry)
	eng := engine.New(deps.RTStore, logger)

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(auth.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, appCfg.StoreBackend, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Authentication and account lifecycle
	authHandler := authapifeature.NewHandler(users, verify, mail, tickets,
		appCfg.BaseURL, appCfg.SiteName, logger)
	r.Mount("/api/auth", authapifeature.Routes(authHandler))

	// Groups and messages
	chatHandler := chatapifeature.NewHandler(eng, logger)
	r.Mount("/api", chatapifeature.Routes(chatHandler))

	// Live updates
	streamHandler := streamfeature.NewHandler(deps.RTStore, tickets, logger)
	r.Mount("/stream", streamfeature.Routes(streamHandler))

	return r, nil
}
