package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/remind"
	"remindbot/internal/services/notify"
	"remindbot/internal/services/scheduler"
	"remindbot/pkg/dates"
	"remindbot/pkg/logx"
)

// Recovery re-arms everything that lived only in timers before a
// restart: per-reminder fire jobs and the self-chaining internal jobs.
type Recovery struct {
	svc      *remind.Service
	store    remind.Store
	sched    remind.JobScheduler
	locks    *LockManager
	lastRun  LastRunStore
	notify   *notify.Service
	settings Settings
	log      logx.Logger
	now      func() time.Time
}

func NewRecovery(svc *remind.Service, store remind.Store, sched remind.JobScheduler, locks *LockManager, lastRun LastRunStore, notifier *notify.Service, log logx.Logger) *Recovery {
	return &Recovery{
		svc:     svc,
		store:   store,
		sched:   sched,
		locks:   locks,
		lastRun: lastRun,
		notify:  notifier,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the clock; tests only.
func (r *Recovery) WithClock(now func() time.Time) *Recovery {
	r.now = now
	return r
}

// Run performs the full recovery pass and reports a summary to the
// operator chat.
func (r *Recovery) Run(ctx context.Context) error {
	rescheduled, recomputed, failed, err := r.RecoverReminders(ctx)
	if err != nil {
		return err
	}
	retriggered, err := r.RetriggerInternalJobs(ctx)
	if err != nil {
		return err
	}

	r.notify.Operator(ctx, notify.PriorityInfo, fmt.Sprintf(
		"Restart recovery done: %d reminder(s) re-armed, %d recurring recomputed, %d failed, %d internal job(s) re-triggered.",
		rescheduled, recomputed, failed, retriggered))
	return nil
}

// RecoverReminders drops every fire job left over from before the
// restart, then re-arms one job per active reminder. Recurring
// reminders whose stored due date fell into the downtime window are
// advanced first; one-shot reminders keep their stored due date even
// when it is in the past, so missed ones fire immediately.
func (r *Recovery) RecoverReminders(ctx context.Context) (rescheduled, recomputed, failed int, err error) {
	r.sched.CancelJob(remind.FireJobID)
	r.sched.CancelJob(remind.LegacyFireJobID)

	active, err := r.store.FindByStatus(ctx, remind.StatusActive)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("jobs: recovery: %w", err)
	}
	now := r.now().UTC()

	for _, rem := range active {
		if rem.Recurring() && rem.DueDate.Before(now) {
			next, aerr := dates.NextFutureOccurrence(rem.DueDate, rem.Frequency, now)
			if aerr != nil {
				r.log.Warn("recovery cannot recompute occurrence",
					logx.String("reminder", rem.ID), logx.Err(aerr))
				failed++
				continue
			}
			rem.DueDate = next
			recomputed++
		}
		if serr := r.svc.ScheduleFire(rem); serr != nil {
			r.log.Warn("recovery reschedule failed",
				logx.String("reminder", rem.ID), logx.Err(serr))
			failed++
			continue
		}
		if uerr := r.store.Upsert(ctx, rem); uerr != nil {
			r.log.Warn("recovery persist failed",
				logx.String("reminder", rem.ID), logx.Err(uerr))
			failed++
			continue
		}
		rescheduled++
	}

	r.log.Info("reminder recovery finished",
		logx.Int("rescheduled", rescheduled),
		logx.Int("recomputed", recomputed),
		logx.Int("failed", failed))
	return rescheduled, recomputed, failed, nil
}

// RetriggerInternalJobs restarts any self-chaining job whose chain
// broke while the process was down. A job is considered lapsed when it
// never ran or when more than its interval has passed since its last
// completed run.
func (r *Recovery) RetriggerInternalJobs(ctx context.Context) (int, error) {
	now := r.now().UTC()
	chains := []struct {
		jobID    string
		interval time.Duration
		grace    time.Duration
	}{
		{JobBackup, 0, BackupGrace}, // interval filled in below
		{JobDigestCalc, DigestCalcInterval, DigestCalcGrace},
		{JobStats, StatsInterval, StatsGrace},
	}

	retriggered := 0
	for _, c := range chains {
		interval := c.interval
		if c.jobID == JobBackup {
			interval = r.backupInterval()
		}
		last, ok, err := r.lastRun.Get(ctx, c.jobID)
		if err != nil {
			return retriggered, fmt.Errorf("jobs: recovery last run %s: %w", c.jobID, err)
		}
		if ok && now.Sub(last) <= interval {
			continue
		}
		at := now.Add(c.grace)
		if err := r.locks.Acquire(ctx, c.jobID, uuid.NewString(), at); err != nil {
			r.log.Warn("recovery re-trigger failed", logx.String("job", c.jobID), logx.Err(err))
			continue
		}
		r.log.Info("internal job re-triggered",
			logx.String("job", c.jobID), logx.Time("at", at))
		retriggered++
	}
	return retriggered, nil
}

// WithSettings wires the live feature toggles; without them the backup
// chain assumes a daily interval.
func (r *Recovery) WithSettings(s Settings) *Recovery {
	r.settings = s
	return r
}

// backupInterval is resolved per run so config changes made while the
// process was down are respected on recovery.
func (r *Recovery) backupInterval() time.Duration {
	if r.settings != nil {
		return r.settings.BackupInterval()
	}
	return 24 * time.Hour
}

// NewRestartProcessor builds the jobs-restart-job processor that runs
// the recovery pass shortly after boot.
func NewRestartProcessor(rec *Recovery, log logx.Logger) scheduler.Processor {
	return func(ctx context.Context, _ map[string]string) error {
		if err := rec.Run(ctx); err != nil {
			log.Error("restart recovery failed", logx.Err(err))
			return err
		}
		return nil
	}
}
