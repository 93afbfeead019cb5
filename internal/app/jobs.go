/**
 * @description
 * Scheduled maintenance jobs for the banklink-service.
 */
package app

import (
	"context"
	"log/slog"
)

// VerificationExpirer is the verification operation the expiry job drives.
type VerificationExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	verifications VerificationExpirer
	logger        *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(verifications VerificationExpirer, logger *slog.Logger) *Jobs {
	return &Jobs{
		verifications: verifications,
		logger:        logger,
	}
}

// ExpireStaleVerifications moves every overdue pending verification to expired.
func (j *Jobs) ExpireStaleVerifications() {
	j.logger.Info("starting verification expiry job")
	ctx := context.Background()

	count, err := j.verifications.ExpireStale(ctx)
	if err != nil {
		j.logger.Error("failed to expire stale verifications", "error", err)
		return
	}
	if count == 0 {
		j.logger.Info("no stale verifications to expire")
		return
	}

	j.logger.Info("verification expiry job finished", "expired", count)
}
