package scheduler

import (
	"context"
	"time"

	"remindbot/pkg/logx"
)

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping fire", logx.String("job", t.jobID))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping fire",
			logx.String("job", t.jobID),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()

	runCtx := ctx
	var cancel func()
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.run(runCtx, t.payload)
	dur := time.Since(start)
	if err != nil {
		s.log.Warn("job failed",
			logx.String("job", t.jobID),
			logx.String("handle", t.handle),
			logx.Err(err),
			logx.Duration("dur", dur))
		return
	}
	// Avoid noisy logs for fast jobs: only elevate to INFO when it took
	// noticeable time.
	if dur >= 750*time.Millisecond {
		s.log.Info("job completed", logx.String("job", t.jobID), logx.Duration("dur", dur))
	} else {
		s.log.Debug("job completed", logx.String("job", t.jobID), logx.Duration("dur", dur))
	}
}
