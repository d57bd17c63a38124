package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/remind"
	"remindbot/internal/services/scheduler"
	"remindbot/internal/transport"
	"remindbot/pkg/dates"
	"remindbot/pkg/logx"
)

// digestHour is the local wall-clock hour digests are delivered at.
const digestHour = 9

// DigestPlanner schedules one daily-reminder-job fire per user who has a
// reminder worth mentioning, each at 09:00 in that user's own offset.
type DigestPlanner struct {
	store remind.Store
	sched remind.JobScheduler
	log   logx.Logger
	now   func() time.Time
}

func NewDigestPlanner(store remind.Store, sched remind.JobScheduler, log logx.Logger) *DigestPlanner {
	return &DigestPlanner{store: store, sched: sched, log: log, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (p *DigestPlanner) WithClock(now func() time.Time) *DigestPlanner {
	p.now = now
	return p
}

// Plan rebuilds the digest schedule from scratch. Iteration is in
// descending creation order, and the first reminder seen per user fixes
// that user's digest instant (so the offset of their newest reminder
// wins when a user has reminders in several zones).
func (p *DigestPlanner) Plan(ctx context.Context) (int, error) {
	p.sched.CancelJob(JobDigest)

	active, err := p.store.FindByStatus(ctx, remind.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("jobs: digest plan: %w", err)
	}
	now := p.now().UTC()

	type plan struct {
		at       time.Time
		offset   float64
		included bool
	}
	plans := map[int64]*plan{}

	for _, r := range active {
		if r.Recurring() {
			continue
		}
		owner := r.CreatedBy
		pl, ok := plans[owner]
		if !ok {
			off := r.TimeZone.Offset
			pl = &plan{at: p.digestInstant(now, off), offset: off}
			plans[owner] = pl
		}
		if pl.included {
			continue
		}
		// Mention the reminder when it is already overdue or lands on the
		// same local calendar day as the digest.
		if r.DueDate.Before(now) || dates.SameCalendarDay(r.DueDate, pl.at, pl.offset) {
			pl.included = true
		}
	}

	scheduled := 0
	for owner, pl := range plans {
		if !pl.included {
			continue
		}
		if _, err := p.sched.Schedule(JobDigest, pl.at, map[string]string{
			PayloadUserID: strconv.FormatInt(owner, 10),
		}); err != nil {
			p.log.Warn("digest schedule failed", logx.Int64("user", owner), logx.Err(err))
			continue
		}
		scheduled++
	}

	p.log.Info("daily digests planned",
		logx.Int("users_seen", len(plans)),
		logx.Int("scheduled", scheduled))
	return scheduled, nil
}

// digestInstant places the next 09:00 local for the given offset: today
// when the local morning is still ahead, otherwise tomorrow.
func (p *DigestPlanner) digestInstant(now time.Time, offset float64) time.Time {
	local := dates.WithOffset(now, offset)
	if local.Hour() > digestHour {
		local = local.AddDate(0, 0, 1)
	}
	local = time.Date(local.Year(), local.Month(), local.Day(), digestHour, 0, 0, 0, time.UTC)
	return dates.ToUTC(local, offset)
}

// NewDigestCalcProcessor builds the locked daily-reminder-calculation-job
// processor. When the digest feature is disabled the planning pass is
// skipped but the chain still advances.
func NewDigestCalcProcessor(planner *DigestPlanner, locks *LockManager, lastRun LastRunStore, settings Settings, log logx.Logger) scheduler.Processor {
	return func(ctx context.Context, payload map[string]string) error {
		ok, err := locks.ShouldExecute(ctx, JobDigestCalc, payload[PayloadTriggerID])
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if settings.DigestEnabled() {
			if _, err := planner.Plan(ctx); err != nil {
				return err
			}
		} else {
			log.Debug("daily digest disabled; skipping planning pass")
		}

		now := planner.now().UTC()
		if err := locks.Acquire(ctx, JobDigestCalc, uuid.NewString(), now.Add(DigestCalcInterval)); err != nil {
			return err
		}
		return lastRun.Set(ctx, JobDigestCalc, now)
	}
}

// NewDigestProcessor builds the per-user daily-reminder-job processor:
// one summary DM counting what is due today and what is overdue. Nothing
// to say means nothing is sent.
func NewDigestProcessor(store remind.Store, sender Sender, log logx.Logger) scheduler.Processor {
	return newDigestProcessor(store, sender, log, time.Now)
}

func newDigestProcessor(store remind.Store, sender Sender, log logx.Logger, now func() time.Time) scheduler.Processor {
	return func(ctx context.Context, payload map[string]string) error {
		userID, err := strconv.ParseInt(payload[PayloadUserID], 10, 64)
		if err != nil || userID == 0 {
			log.Warn("digest fire without valid user id", logx.String("raw", payload[PayloadUserID]))
			return nil
		}

		rs, err := store.FindByOwner(ctx, userID)
		if err != nil {
			return fmt.Errorf("jobs: digest for %d: %w", userID, err)
		}

		nowUTC := now().UTC()
		dueToday, overdue := 0, 0
		for _, r := range rs {
			if r.Status != remind.StatusActive || r.Recurring() {
				continue
			}
			switch {
			case r.DueDate.Before(nowUTC):
				overdue++
			case dates.SameCalendarDay(r.DueDate, nowUTC, r.TimeZone.Offset):
				dueToday++
			}
		}
		if dueToday == 0 && overdue == 0 {
			return nil
		}

		text := digestText(dueToday, overdue)
		if _, err := sender.SendText(ctx, transport.ChatTarget{ChatID: userID}, text, &transport.SendOptions{DisablePreview: true}); err != nil {
			log.Warn("digest delivery failed", logx.Int64("user", userID), logx.Err(err))
		}
		return nil
	}
}

func digestText(dueToday, overdue int) string {
	switch {
	case overdue == 0:
		return fmt.Sprintf("🌅 Good morning! You have %d reminder(s) due today.", dueToday)
	case dueToday == 0:
		return fmt.Sprintf("🌅 Good morning! You have %d overdue reminder(s).", overdue)
	default:
		return fmt.Sprintf("🌅 Good morning! You have %d reminder(s) due today and %d overdue.", dueToday, overdue)
	}
}
