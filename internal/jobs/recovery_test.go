package jobs

import (
	"context"
	"testing"
	"time"

	"remindbot/internal/remind"
	"remindbot/internal/services/notify"
	"remindbot/pkg/logx"
)

// fakeAdapter turns fakeSender into a full transport.Adapter.
type fakeAdapter struct{ *fakeSender }

func (fakeAdapter) Start(context.Context) error { return nil }
func (fakeAdapter) Stop(context.Context) error  { return nil }

func newTestRecovery(store *memStore, sched *fakeSched, lastRun *fakeLastRun, now func() time.Time) *Recovery {
	svc := remind.NewService(store, sched, logx.Nop()).WithClock(now)
	locks := NewLockManager(newFakeLockStore(), sched, logx.Nop()).WithClock(now)
	notifier := notify.New(fakeAdapter{newFakeSender()}, logx.Nop())
	return NewRecovery(svc, store, sched, locks, lastRun, notifier, logx.Nop()).WithClock(now)
}

func TestRecoverRemindersRecomputesRecurringAndKeepsOneShots(t *testing.T) {
	t.Parallel()

	store, sched := newMemStore(), newFakeSched()
	now := fixedClock("2024-01-15T10:00:00Z")
	rec := newTestRecovery(store, sched, newFakeLastRun(), now)

	mustUpsert(t, store, &remind.Reminder{
		ID: "weekly", Description: "standup", CreatedBy: 1, Frequency: "weekly",
		DueDate:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	mustUpsert(t, store, &remind.Reminder{
		ID: "missed", Description: "pay rent", CreatedBy: 2,
		DueDate:   time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2023, 12, 2, 0, 0, 0, 0, time.UTC),
	})
	mustUpsert(t, store, &remind.Reminder{
		ID: "future", Description: "dentist", CreatedBy: 3,
		DueDate:   time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2023, 12, 3, 0, 0, 0, 0, time.UTC),
	})

	rescheduled, recomputed, failed, err := rec.RecoverReminders(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rescheduled != 3 || recomputed != 1 || failed != 0 {
		t.Fatalf("rescheduled=%d recomputed=%d failed=%d", rescheduled, recomputed, failed)
	}

	// The missed one-shot keeps its past due date and fires immediately.
	missed, _ := store.Get(context.Background(), "missed")
	if !missed.DueDate.Equal(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("one-shot due date moved to %v", missed.DueDate)
	}

	// The lapsed weekly lands on the next occurrence after now.
	weekly, _ := store.Get(context.Background(), "weekly")
	want := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	if !weekly.DueDate.Equal(want) {
		t.Fatalf("recurring due = %v, want %v", weekly.DueDate, want)
	}

	// Exactly one live fire per reminder, all under the current job class.
	if n := len(sched.pending(remind.FireJobID)); n != 3 {
		t.Fatalf("pending fires = %d, want 3", n)
	}
	for _, r := range []*remind.Reminder{missed, weekly} {
		if r.JobHandle == "" {
			t.Fatalf("reminder %s has no fire handle", r.ID)
		}
	}
}

func TestRecoverRemindersDropsStaleFireClasses(t *testing.T) {
	t.Parallel()

	store, sched := newMemStore(), newFakeSched()
	now := fixedClock("2024-01-15T10:00:00Z")
	rec := newTestRecovery(store, sched, newFakeLastRun(), now)

	// Fires left behind by the previous process, one under the legacy class.
	if _, err := sched.Schedule(remind.FireJobID, now().Add(time.Hour), map[string]string{remind.PayloadReminderID: "gone"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := sched.Schedule(remind.LegacyFireJobID, now().Add(time.Hour), map[string]string{remind.PayloadReminderID: "gone"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, _, err := rec.RecoverReminders(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if n := len(sched.pending(remind.LegacyFireJobID)); n != 0 {
		t.Fatalf("legacy fires still pending: %d", n)
	}
	if n := len(sched.pending(remind.FireJobID)); n != 0 {
		t.Fatalf("stale fires still pending: %d", n)
	}
}

func TestRetriggerInternalJobs(t *testing.T) {
	t.Parallel()

	now := fixedClock("2024-06-10T12:00:00Z")

	t.Run("never ran", func(t *testing.T) {
		sched := newFakeSched()
		rec := newTestRecovery(newMemStore(), sched, newFakeLastRun(), now).
			WithSettings(fakeSettings{backupEvery: 24 * time.Hour})

		n, err := rec.RetriggerInternalJobs(context.Background())
		if err != nil {
			t.Fatalf("retrigger: %v", err)
		}
		if n != 3 {
			t.Fatalf("retriggered = %d, want all 3 chains", n)
		}
		if got := sched.pending(JobBackup); len(got) != 1 || !got[0].Equal(now().Add(BackupGrace)) {
			t.Fatalf("backup fire = %v, want %v", got, now().Add(BackupGrace))
		}
		if got := sched.pending(JobDigestCalc); len(got) != 1 || !got[0].Equal(now().Add(DigestCalcGrace)) {
			t.Fatalf("digest-calc fire = %v", got)
		}
		if got := sched.pending(JobStats); len(got) != 1 || !got[0].Equal(now().Add(StatsGrace)) {
			t.Fatalf("stats fire = %v", got)
		}
	})

	t.Run("fresh chains left alone", func(t *testing.T) {
		sched, lastRun := newFakeSched(), newFakeLastRun()
		for _, job := range []string{JobBackup, JobDigestCalc, JobStats} {
			if err := lastRun.Set(context.Background(), job, now().Add(-time.Hour)); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		rec := newTestRecovery(newMemStore(), sched, lastRun, now).
			WithSettings(fakeSettings{backupEvery: 24 * time.Hour})

		n, err := rec.RetriggerInternalJobs(context.Background())
		if err != nil {
			t.Fatalf("retrigger: %v", err)
		}
		if n != 0 {
			t.Fatalf("retriggered = %d, want 0", n)
		}
	})

	t.Run("lapsed chain restarts", func(t *testing.T) {
		sched, lastRun := newFakeSched(), newFakeLastRun()
		// Stats ran just over its interval ago; the window comparison
		// must restart it rather than treat it as fresh.
		if err := lastRun.Set(context.Background(), JobStats, now().Add(-StatsInterval-time.Minute)); err != nil {
			t.Fatalf("seed: %v", err)
		}
		for _, job := range []string{JobBackup, JobDigestCalc} {
			if err := lastRun.Set(context.Background(), job, now().Add(-time.Hour)); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		rec := newTestRecovery(newMemStore(), sched, lastRun, now).
			WithSettings(fakeSettings{backupEvery: 24 * time.Hour})

		n, err := rec.RetriggerInternalJobs(context.Background())
		if err != nil {
			t.Fatalf("retrigger: %v", err)
		}
		if n != 1 || len(sched.pending(JobStats)) != 1 {
			t.Fatalf("retriggered = %d, stats fires = %d", n, len(sched.pending(JobStats)))
		}
		if len(sched.pending(JobBackup)) != 0 || len(sched.pending(JobDigestCalc)) != 0 {
			t.Fatalf("fresh chains were re-triggered")
		}
	})
}
