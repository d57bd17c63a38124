package remind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"remindbot/pkg/dates"
	"remindbot/pkg/logx"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu sync.Mutex
	m  map[string]*Reminder
}

func newFakeStore() *fakeStore { return &fakeStore{m: map[string]*Reminder{}} }

func (f *fakeStore) clone(r *Reminder) *Reminder {
	b, _ := json.Marshal(r)
	var cp Reminder
	_ = json.Unmarshal(b, &cp)
	return &cp
}

func (f *fakeStore) Upsert(_ context.Context, r *Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[r.ID] = f.clone(r)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := f.clone(r)
	cp.Normalize()
	return cp, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, id)
	return nil
}

func (f *fakeStore) find(match func(*Reminder) bool) []*Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Reminder
	for _, r := range f.m {
		if match(r) {
			cp := f.clone(r)
			cp.Normalize()
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) FindByStatus(_ context.Context, status Status) ([]*Reminder, error) {
	return f.find(func(r *Reminder) bool { return r.Status == status }), nil
}

func (f *fakeStore) FindByOwner(_ context.Context, owner int64) ([]*Reminder, error) {
	return f.find(func(r *Reminder) bool { return r.CreatedBy == owner }), nil
}

func (f *fakeStore) All(_ context.Context) ([]*Reminder, error) {
	return f.find(func(*Reminder) bool { return true }), nil
}

func (f *fakeStore) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.m {
		if r.Status == StatusCompleted && r.CreatedAt.Before(cutoff) {
			delete(f.m, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountByStatus(_ context.Context, status Status) (int64, error) {
	return int64(len(f.find(func(r *Reminder) bool { return r.Status == status }))), nil
}

// fakeSched records scheduled fires and cancellations.
type fakeSched struct {
	mu        sync.Mutex
	seq       int
	scheduled map[string]time.Time // handle -> at
	payloads  map[string]map[string]string
	cancelled []string
}

func newFakeSched() *fakeSched {
	return &fakeSched{scheduled: map[string]time.Time{}, payloads: map[string]map[string]string{}}
}

func (f *fakeSched) Schedule(jobID string, at time.Time, payload map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	h := fmt.Sprintf("%s:%d", jobID, f.seq)
	f.scheduled[h] = at
	f.payloads[h] = payload
	return h, nil
}

func (f *fakeSched) Cancel(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, handle)
	_, ok := f.scheduled[handle]
	delete(f.scheduled, handle)
	return ok
}

func (f *fakeSched) CancelJob(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for h := range f.scheduled {
		if len(h) > len(jobID) && h[:len(jobID)] == jobID {
			delete(f.scheduled, h)
			n++
		}
	}
	return n
}

func fixedClock(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.UTC() }
}

func newTestService(store *fakeStore, sched *fakeSched, now string) *Service {
	return NewService(store, sched, logx.Nop()).WithClock(fixedClock(now))
}

func TestNormalizeLegacyFields(t *testing.T) {
	t.Parallel()

	r := &Reminder{
		LegacyJobID: "reminder-job:old",
		Audience:    &Audience{Kind: AudienceUsers, LegacyIDs: []int64{7, 8}},
	}
	r.Normalize()
	if r.JobHandle != "reminder-job:old" || r.LegacyJobID != "" {
		t.Fatalf("job handle not normalized: %+v", r)
	}
	if len(r.Audience.IDs) != 2 || r.Audience.LegacyIDs != nil {
		t.Fatalf("audience ids not normalized: %+v", r.Audience)
	}

	// Normalized records pass through untouched.
	r2 := &Reminder{JobHandle: "keep", Audience: &Audience{IDs: []int64{1}}}
	r2.Normalize()
	if r2.JobHandle != "keep" || len(r2.Audience.IDs) != 1 {
		t.Fatalf("normalized record was modified: %+v", r2)
	}
}

func TestAdvanceUsesScheduledDueDateNotNow(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-01-15T10:00:00Z")

	r := &Reminder{
		ID: "r1", Description: "standup", Status: StatusActive,
		Frequency: dates.FreqWeekly,
		DueDate:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := svc.Advance(context.Background(), r); err != nil {
		t.Fatalf("advance: %v", err)
	}

	want := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	if !r.DueDate.Equal(want) {
		t.Fatalf("due = %v, want %v (advance must derive from the scheduled slot)", r.DueDate, want)
	}
	if r.JobHandle == "" {
		t.Fatal("no fire scheduled")
	}
	if at := sched.scheduled[r.JobHandle]; !at.Equal(want) {
		t.Fatalf("fire armed at %v, want %v", at, want)
	}
	stored, err := store.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.DueDate.Equal(want) {
		t.Fatal("advanced due date not persisted")
	}
}

func TestAdvanceRejectsNonRecurring(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStore(), newFakeSched(), "2024-01-15T10:00:00Z")
	r := &Reminder{ID: "r1", Status: StatusActive, Frequency: dates.FreqNone,
		DueDate: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	if err := svc.Advance(context.Background(), r); err == nil {
		t.Fatal("advancing a one-shot reminder should fail")
	}
}

func TestSnoozePrechecks(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-06-01T12:00:00Z")
	ctx := context.Background()

	done := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_ = store.Upsert(ctx, &Reminder{ID: "done", Description: "x", Status: StatusCompleted,
		Frequency: dates.FreqNone, DueDate: done, CreatedAt: done, CompletedAt: &done})
	_ = store.Upsert(ctx, &Reminder{ID: "future", Description: "x", Status: StatusActive,
		Frequency: dates.FreqNone, DueDate: time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC), CreatedAt: done})

	if _, err := svc.Snooze(ctx, "done", time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("snooze completed: err = %v", err)
	}
	if _, err := svc.Snooze(ctx, "future", time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)); !errors.Is(err, ErrNotYetDue) {
		t.Fatalf("snooze future: err = %v", err)
	}
	if _, err := svc.Snooze(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("snooze missing: err = %v", err)
	}
	if len(sched.scheduled) != 0 {
		t.Fatal("rejected snoozes must not schedule anything")
	}
}

func TestSnoozeReschedulesOverdueReminder(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-06-01T12:00:00Z")
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	oldHandle, _ := sched.Schedule(FireJobID, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), nil)
	_ = store.Upsert(ctx, &Reminder{ID: "r1", Description: "x", Status: StatusActive,
		Frequency: dates.FreqNone, DueDate: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		CreatedAt: created, JobHandle: oldHandle})

	until := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	r, err := svc.Snooze(ctx, "r1", until)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !r.DueDate.Equal(until) {
		t.Fatalf("due = %v, want %v", r.DueDate, until)
	}
	if r.JobHandle == oldHandle || r.JobHandle == "" {
		t.Fatalf("handle not replaced: %q", r.JobHandle)
	}
	if _, still := sched.scheduled[oldHandle]; still {
		t.Fatal("old fire still armed")
	}
	if at := sched.scheduled[r.JobHandle]; !at.Equal(until) {
		t.Fatalf("new fire armed at %v, want %v", at, until)
	}
}

func TestCompleteCancelsFireAndStamps(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-06-01T12:00:00Z")
	ctx := context.Background()

	h, _ := sched.Schedule(FireJobID, time.Now(), nil)
	r := &Reminder{ID: "r1", Description: "x", Status: StatusActive, Frequency: dates.FreqNone,
		DueDate: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), CreatedAt: time.Now().UTC(), JobHandle: h}
	if err := svc.Complete(ctx, r); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if r.Status != StatusCompleted || r.CompletedAt == nil || r.JobHandle != "" {
		t.Fatalf("completion state wrong: %+v", r)
	}
	if _, still := sched.scheduled[h]; still {
		t.Fatal("fire still armed after completion")
	}
}

func TestApplyDSTShiftsActiveReminders(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-03-09T12:00:00Z")
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, due time.Time, status Status) {
		h, _ := sched.Schedule(FireJobID, due, nil)
		_ = store.Upsert(ctx, &Reminder{ID: id, Description: "x", Status: status,
			Frequency: dates.FreqNone, DueDate: due, CreatedAt: created, JobHandle: h})
	}
	mk("a", time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), StatusActive)
	mk("b", time.Date(2024, 3, 10, 23, 45, 0, 0, time.UTC), StatusActive)
	mk("c", time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), StatusCompleted)

	moved, failed, err := svc.ApplyDST(ctx, dates.DSTForward)
	if err != nil {
		t.Fatalf("apply dst: %v", err)
	}
	if moved != 2 || failed != 0 {
		t.Fatalf("moved=%d failed=%d, want 2/0", moved, failed)
	}

	a, _ := store.Get(ctx, "a")
	if want := time.Date(2024, 3, 10, 10, 30, 0, 0, time.UTC); !a.DueDate.Equal(want) {
		t.Fatalf("a due = %v, want %v", a.DueDate, want)
	}
	b, _ := store.Get(ctx, "b")
	if want := time.Date(2024, 3, 11, 0, 45, 0, 0, time.UTC); !b.DueDate.Equal(want) {
		t.Fatalf("b due = %v, want %v (late-evening shift rolls the day)", b.DueDate, want)
	}
	c, _ := store.Get(ctx, "c")
	if want := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC); !c.DueDate.Equal(want) {
		t.Fatal("completed reminder must not move")
	}
}

func TestApplyDSTRejectsUnknownDirection(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-03-09T12:00:00Z")
	if _, _, err := svc.ApplyDST(context.Background(), dates.DSTDirection("sideways")); err == nil {
		t.Fatal("unknown direction accepted")
	}
	if len(sched.cancelled) != 0 {
		t.Fatal("validation failure must not touch any reminder")
	}
}

func TestCreateSchedulesFirstFire(t *testing.T) {
	t.Parallel()

	store, sched := newFakeStore(), newFakeSched()
	svc := newTestService(store, sched, "2024-06-01T12:00:00Z")
	ctx := context.Background()

	due := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	r, err := svc.Create(ctx, CreateParams{
		Description: "water the plants",
		DueDate:     due,
		TimeZone:    TimeZone{Offset: 2},
		Frequency:   dates.FreqDaily,
		RoomID:      42,
		CreatedBy:   7,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == "" || r.Status != StatusActive {
		t.Fatalf("bad reminder: %+v", r)
	}
	if at := sched.scheduled[r.JobHandle]; !at.Equal(due) {
		t.Fatalf("fire armed at %v, want %v", at, due)
	}
	if p := sched.payloads[r.JobHandle]; p[PayloadReminderID] != r.ID {
		t.Fatalf("payload = %v", p)
	}
	if _, err := store.Get(ctx, r.ID); err != nil {
		t.Fatalf("not persisted: %v", err)
	}

	if _, err := svc.Create(ctx, CreateParams{DueDate: due}); err == nil {
		t.Fatal("empty description accepted")
	}
	if _, err := svc.Create(ctx, CreateParams{Description: "x", DueDate: due, Frequency: "sometimes"}); err == nil {
		t.Fatal("unknown frequency accepted")
	}
}
