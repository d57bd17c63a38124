// Package remind holds the reminder domain: the persisted model, fire
// scheduling, recurrence advancement, snooze, and bulk daylight-saving
// adjustment.
package remind

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/pkg/dates"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type AudienceKind string

const (
	AudienceRooms AudienceKind = "rooms"
	AudienceUsers AudienceKind = "users"
)

// TimeZone is the fixed-offset frame a reminder was created in. The
// offset is fractional hours east of UTC (+5.5 means +05:30).
type TimeZone struct {
	Offset float64 `json:"utcOffset"`
	Name   string  `json:"name,omitempty"`
}

// Audience is who a reminder addresses besides its creator. Nil audience
// means a personal reminder delivered to the creator only.
type Audience struct {
	Kind AudienceKind `json:"kind"`
	// IDs is the normalized id list.
	IDs []int64 `json:"audienceIds,omitempty"`
	// LegacyIDs carries the pre-migration field name. Normalize folds it
	// into IDs; nothing else reads it.
	LegacyIDs []int64 `json:"ids,omitempty"`
}

// Reminder is the persisted record. DueDate is canonical UTC; for an
// active recurring reminder it must be the next future fire instant, and
// readers that find it in the past recompute before scheduling.
type Reminder struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	DueDate     time.Time       `json:"dueDate"`
	TimeZone    TimeZone        `json:"timeZone"`
	Frequency   dates.Frequency `json:"frequency"`
	Status      Status          `json:"status"`
	Audience    *Audience       `json:"audience,omitempty"`
	RoomID      int64           `json:"roomId"`
	CreatedBy   int64           `json:"createdBy"`

	// JobHandle is the scheduler handle of the pending fire, empty when
	// none is scheduled.
	JobHandle string `json:"jobHandle,omitempty"`
	// LegacyJobID carries the pre-migration handle field. Normalize folds
	// it into JobHandle.
	LegacyJobID string `json:"jobId,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Normalize folds deprecated dual-shape fields into their current form.
// It runs once right after deserialization; no other code branches on
// the legacy shape.
func (r *Reminder) Normalize() {
	if r.JobHandle == "" && r.LegacyJobID != "" {
		r.JobHandle = r.LegacyJobID
	}
	r.LegacyJobID = ""
	if r.Audience != nil {
		if len(r.Audience.IDs) == 0 && len(r.Audience.LegacyIDs) > 0 {
			r.Audience.IDs = r.Audience.LegacyIDs
		}
		r.Audience.LegacyIDs = nil
	}
}

// Recurring reports whether the reminder fires more than once.
func (r *Reminder) Recurring() bool { return r.Frequency.Recurring() }

// Personal reports whether the reminder is delivered to its creator only.
func (r *Reminder) Personal() bool {
	return r.Audience == nil || len(r.Audience.IDs) == 0
}

var (
	ErrNotFound = errors.New("remind: reminder not found")
)

func (r *Reminder) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("remind: id required")
	}
	if r.DueDate.IsZero() {
		return errors.New("remind: due date required")
	}
	if r.Frequency != "" && !r.Frequency.Valid() {
		return fmt.Errorf("remind: unknown frequency %q", r.Frequency)
	}
	switch r.Status {
	case StatusActive, StatusCompleted:
	default:
		return fmt.Errorf("remind: unknown status %q", r.Status)
	}
	return nil
}
