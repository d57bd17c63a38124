package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"remindbot/internal/remind"
	"remindbot/pkg/logx"
)

func newFireFixture(t *testing.T, now string) (*memStore, *fakeSched, *fakeSender, func(context.Context, map[string]string) error) {
	t.Helper()
	store, sched, sender := newMemStore(), newFakeSched(), newFakeSender()
	svc := remind.NewService(store, sched, logx.Nop()).WithClock(fixedClock(now))
	proc := NewFireProcessor(svc, sender, logx.Nop())
	return store, sched, sender, proc
}

func firePayload(id string) map[string]string {
	return map[string]string{remind.PayloadReminderID: id}
}

func TestFireRecurringAdvancesFromScheduledSlot(t *testing.T) {
	t.Parallel()

	store, sched, sender, proc := newFireFixture(t, "2024-01-15T10:00:00Z")
	mustUpsert(t, store, &remind.Reminder{
		ID: "r1", Description: "standup", CreatedBy: 7, Frequency: "weekly",
		DueDate:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
	})

	if err := proc(context.Background(), firePayload("r1")); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if got := sender.texts(7); len(got) != 1 || !strings.Contains(got[0], "standup") {
		t.Fatalf("delivered %v", got)
	}
	r, _ := store.Get(context.Background(), "r1")
	want := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	if !r.DueDate.Equal(want) || r.Status != remind.StatusActive {
		t.Fatalf("after fire: due=%v status=%s", r.DueDate, r.Status)
	}
	if n := len(sched.pending(remind.FireJobID)); n != 1 {
		t.Fatalf("pending fires = %d, want the next occurrence armed", n)
	}
}

func TestFireAudienceOneShotCompletes(t *testing.T) {
	t.Parallel()

	store, _, sender, proc := newFireFixture(t, "2024-01-15T10:00:00Z")
	mustUpsert(t, store, &remind.Reminder{
		ID: "r1", Description: "release", CreatedBy: 7,
		Audience:  &remind.Audience{Kind: remind.AudienceUsers, IDs: []int64{11, 0, 12}},
		DueDate:   time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	if err := proc(context.Background(), firePayload("r1")); err != nil {
		t.Fatalf("fire: %v", err)
	}

	// The zero id is skipped; the resolvable targets each get one message.
	if len(sender.texts(11)) != 1 || len(sender.texts(12)) != 1 {
		t.Fatalf("sent: %v / %v", sender.texts(11), sender.texts(12))
	}
	r, _ := store.Get(context.Background(), "r1")
	if r.Status != remind.StatusCompleted || r.CompletedAt == nil || r.JobHandle != "" {
		t.Fatalf("after fire: %+v", r)
	}
}

func TestFirePersonalOneShotStaysActive(t *testing.T) {
	t.Parallel()

	store, _, sender, proc := newFireFixture(t, "2024-01-15T10:00:00Z")
	mustUpsert(t, store, &remind.Reminder{
		ID: "r1", Description: "pay rent", CreatedBy: 7,
		DueDate:   time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		JobHandle: "reminders-job:consumed",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	if err := proc(context.Background(), firePayload("r1")); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if got := sender.texts(7); len(got) != 1 {
		t.Fatalf("delivered %v", got)
	}
	// Stays active so its owner can still snooze or complete it; only the
	// consumed fire handle is cleared.
	r, _ := store.Get(context.Background(), "r1")
	if r.Status != remind.StatusActive || r.JobHandle != "" {
		t.Fatalf("after fire: status=%s handle=%q", r.Status, r.JobHandle)
	}
}

func TestFireMissingAndCompletedAreRecoverable(t *testing.T) {
	t.Parallel()

	store, _, sender, proc := newFireFixture(t, "2024-01-15T10:00:00Z")
	done := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	mustUpsert(t, store, &remind.Reminder{
		ID: "done", Description: "old", CreatedBy: 7, Status: remind.StatusCompleted,
		DueDate: done, CompletedAt: &done,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	if err := proc(context.Background(), firePayload("ghost")); err != nil {
		t.Fatalf("missing reminder must not fail the fire: %v", err)
	}
	if err := proc(context.Background(), firePayload("done")); err != nil {
		t.Fatalf("completed reminder must not fail the fire: %v", err)
	}
	if err := proc(context.Background(), map[string]string{}); err != nil {
		t.Fatalf("empty payload must not fail the fire: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("nothing should have been delivered: %v", sender.sent)
	}
}
