package jobs

import (
	"context"
	"time"
)

// LastRunStore persists job completion instants. Read only by restart
// recovery; written by every locked job on success.
type LastRunStore interface {
	// Get reports when jobID last completed; ok is false when it never has.
	Get(ctx context.Context, jobID string) (at time.Time, ok bool, err error)
	Set(ctx context.Context, jobID string, at time.Time) error
}
