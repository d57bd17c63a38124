package remind

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/pkg/dates"
	"remindbot/pkg/logx"
)

const (
	// FireJobID is the job class behind reminder fires.
	FireJobID = "reminders-job"
	// LegacyFireJobID is the deprecated fire class; recovery still
	// cancels it so fires scheduled by old builds cannot double-deliver.
	LegacyFireJobID = "reminder-job"

	// PayloadReminderID keys the reminder id inside a fire payload.
	PayloadReminderID = "reminderId"
)

// JobScheduler is the slice of the scheduler service the domain needs.
type JobScheduler interface {
	Schedule(jobID string, at time.Time, payload map[string]string) (string, error)
	Cancel(handle string) bool
	CancelJob(jobID string) int
}

var (
	// ErrAlreadyCompleted rejects snoozing a reminder that already ran out.
	ErrAlreadyCompleted = errors.New("remind: reminder is already completed")
	// ErrNotYetDue rejects snoozing a reminder whose fire is still ahead.
	ErrNotYetDue = errors.New("remind: reminder is not due yet")
)

// Service owns reminder lifecycle operations. All instants are UTC; the
// injected clock keeps decision logic testable.
type Service struct {
	store Store
	sched JobScheduler
	log   logx.Logger
	now   func() time.Time
}

func NewService(store Store, sched JobScheduler, log logx.Logger) *Service {
	return &Service{store: store, sched: sched, log: log, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Store() Store { return s.store }

// CreateParams describes a new reminder. Frequency defaults to none.
type CreateParams struct {
	Description string
	DueDate     time.Time
	TimeZone    TimeZone
	Frequency   dates.Frequency
	Audience    *Audience
	RoomID      int64
	CreatedBy   int64
}

// Create persists a new active reminder and schedules its first fire.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Reminder, error) {
	if strings.TrimSpace(p.Description) == "" {
		return nil, errors.New("remind: description required")
	}
	freq := p.Frequency
	if freq == "" {
		freq = dates.FreqNone
	}
	if !freq.Valid() {
		return nil, fmt.Errorf("remind: unknown frequency %q", freq)
	}
	r := &Reminder{
		ID:          uuid.NewString(),
		Description: p.Description,
		DueDate:     p.DueDate.UTC(),
		TimeZone:    p.TimeZone,
		Frequency:   freq,
		Status:      StatusActive,
		Audience:    p.Audience,
		RoomID:      p.RoomID,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.ScheduleFire(r); err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("reminder created",
		logx.String("reminder", r.ID),
		logx.Time("due", r.DueDate),
		logx.String("frequency", string(r.Frequency)))
	return r, nil
}

// ScheduleFire registers the one-shot fire for r's DueDate and stores
// the handle on the reminder. The due instant is not validated; a past
// instant fires immediately, which restart catch-up depends on.
func (s *Service) ScheduleFire(r *Reminder) error {
	handle, err := s.sched.Schedule(FireJobID, r.DueDate, map[string]string{
		PayloadReminderID: r.ID,
	})
	if err != nil {
		return fmt.Errorf("remind: schedule fire for %s: %w", r.ID, err)
	}
	r.JobHandle = handle
	return nil
}

// CancelFire drops the pending fire behind a handle. Best-effort: a
// missing or already-fired handle is only logged.
func (s *Service) CancelFire(handle string) {
	if handle == "" {
		return
	}
	if !s.sched.Cancel(handle) {
		s.log.Debug("fire cancel was a no-op", logx.String("handle", handle))
	}
}

// Advance moves a recurring reminder to its next occurrence after a
// fire. The new due date derives from the previous scheduled DueDate,
// never from "now", so a late fire does not drift the schedule.
func (s *Service) Advance(ctx context.Context, r *Reminder) error {
	next, err := dates.NextFutureOccurrence(r.DueDate, r.Frequency, s.now())
	if err != nil {
		return fmt.Errorf("remind: advance %s: %w", r.ID, err)
	}
	r.DueDate = next
	if err := s.ScheduleFire(r); err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, r); err != nil {
		return err
	}
	s.log.Debug("reminder advanced",
		logx.String("reminder", r.ID),
		logx.Time("next", next))
	return nil
}

// Complete marks a reminder done and drops its pending fire.
func (s *Service) Complete(ctx context.Context, r *Reminder) error {
	s.CancelFire(r.JobHandle)
	at := s.now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &at
	r.JobHandle = ""
	return s.store.Upsert(ctx, r)
}

// Snooze pushes an overdue reminder to a new instant. Completed
// reminders and reminders whose due date is still ahead are rejected
// before anything is touched.
func (s *Service) Snooze(ctx context.Context, id string, until time.Time) (*Reminder, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if r.DueDate.After(s.now()) {
		return nil, ErrNotYetDue
	}

	s.CancelFire(r.JobHandle)
	r.DueDate = until.UTC()
	if err := s.ScheduleFire(r); err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("reminder snoozed",
		logx.String("reminder", r.ID),
		logx.Time("until", r.DueDate))
	return r, nil
}
