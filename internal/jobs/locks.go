package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/remind"
	"remindbot/pkg/logx"
)

// JobLock is the persisted fencing record of a locked job. One row per
// job id, overwritten on every reschedule.
type JobLock struct {
	JobID     string    `json:"jobId"`
	TriggerID string    `json:"triggerId"`
	LockedAt  time.Time `json:"lockedAt"`
}

// ErrNoLock is returned by LockStore.Get when a job has never been locked.
var ErrNoLock = errors.New("jobs: no lock")

type LockStore interface {
	Get(ctx context.Context, jobID string) (*JobLock, error)
	Put(ctx context.Context, lock *JobLock) error
}

// LockManager implements the schedule-then-lock protocol. Acquire is
// deliberately not atomic: a crash between the two steps leaves either a
// scheduled fire with a stale lock or a lock with no fire, and both
// resolve through ShouldExecute's staleness window plus restart recovery.
type LockManager struct {
	store LockStore
	sched remind.JobScheduler
	log   logx.Logger
	now   func() time.Time
}

func NewLockManager(store LockStore, sched remind.JobScheduler, log logx.Logger) *LockManager {
	return &LockManager{store: store, sched: sched, log: log, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (m *LockManager) WithClock(now func() time.Time) *LockManager {
	m.now = now
	return m
}

// Acquire schedules the job's next fire carrying triggerID as its
// fencing token, then records the lock. The trigger id must be fresh
// per attempt.
func (m *LockManager) Acquire(ctx context.Context, jobID, triggerID string, at time.Time) error {
	if _, err := m.sched.Schedule(jobID, at, map[string]string{PayloadTriggerID: triggerID}); err != nil {
		return fmt.Errorf("jobs: acquire %s: %w", jobID, err)
	}
	lock := &JobLock{JobID: jobID, TriggerID: triggerID, LockedAt: m.now().UTC()}
	if err := m.store.Put(ctx, lock); err != nil {
		return fmt.Errorf("jobs: acquire %s: %w", jobID, err)
	}
	m.log.Debug("job lock acquired",
		logx.String("job", jobID),
		logx.String("trigger", triggerID),
		logx.Time("at", at))
	return nil
}

// ShouldExecute decides whether an arriving fire owns the job. True when
// the job has never been locked, when the incoming trigger matches the
// recorded one, or when the recorded lock is stale enough that whoever
// wrote it is presumed dead.
func (m *LockManager) ShouldExecute(ctx context.Context, jobID, triggerID string) (bool, error) {
	lock, err := m.store.Get(ctx, jobID)
	if errors.Is(err, ErrNoLock) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("jobs: should-execute %s: %w", jobID, err)
	}
	if lock.TriggerID == triggerID {
		return true, nil
	}
	if m.now().Sub(lock.LockedAt) >= LockStaleAfter {
		m.log.Warn("job lock is stale; executing anyway",
			logx.String("job", jobID),
			logx.Time("locked_at", lock.LockedAt))
		return true, nil
	}
	m.log.Debug("job fire skipped (trigger superseded)",
		logx.String("job", jobID),
		logx.String("incoming", triggerID),
		logx.String("current", lock.TriggerID))
	return false, nil
}
