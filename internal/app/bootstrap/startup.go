// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"github.com/veil-chat/veil/internal/app/store/emailverify"
	"github.com/veil-chat/veil/internal/app/system/tasks"
	"go.uber.org/zap"
)

// background holds the job runner so Shutdown can stop it.
var background *tasks.Runner

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	logger.Info("veil starting",
		zap.String("store_backend", appCfg.StoreBackend),
		zap.String("base_url", appCfg.BaseURL))

	verify := emailverify.New(deps.MongoDatabase, appCfg.EmailVerifyExpiry)
	background = tasks.NewRunner(logger,
		tasks.VerificationCleanupJob(verify, logger))
	background.Start(context.Background())
	return nil
}
