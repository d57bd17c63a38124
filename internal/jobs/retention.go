package jobs

import (
	"context"
	"time"

	"remindbot/internal/remind"
	"remindbot/pkg/logx"
)

// NewRetentionSweep returns the cron func that deletes completed
// reminders older than maxAge. Runs on the scheduler's cron loop.
func NewRetentionSweep(store remind.Store, maxAge time.Duration, log logx.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-maxAge)
		n, err := store.DeleteCompletedBefore(ctx, cutoff)
		if err != nil {
			log.Warn("retention sweep failed", logx.Err(err))
			return err
		}
		if n > 0 {
			log.Info("retention sweep", logx.Int64("deleted", n), logx.Time("cutoff", cutoff))
		}
		return nil
	}
}
