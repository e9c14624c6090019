// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/veil-chat/veil/internal/app/store/emailverify"
	"go.uber.org/zap"
)

// VerificationCleanupJob removes expired email verification records.
// This is a backup for when MongoDB's TTL index cleanup is delayed.
func VerificationCleanupJob(verify *emailverify.Store, logger *zap.Logger) Job {
	return Job{
		Name:     "email-verification-cleanup",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := verify.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired email verifications", zap.Int64("count", count))
			}
			return nil
		},
	}
}
