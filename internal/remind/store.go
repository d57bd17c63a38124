package remind

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/storage"
)

// Store is the persistence surface the reminder services need. The
// sqlite implementation lives below; tests substitute an in-memory fake.
type Store interface {
	Upsert(ctx context.Context, r *Reminder) error
	Get(ctx context.Context, id string) (*Reminder, error)
	Delete(ctx context.Context, id string) error

	// FindByStatus returns reminders in descending creation order.
	FindByStatus(ctx context.Context, status Status) ([]*Reminder, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]*Reminder, error)
	All(ctx context.Context) ([]*Reminder, error)

	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context, status Status) (int64, error)
}

type sqlStore struct {
	repo *storage.Repo[Reminder]
}

// NewStore builds the sqlite-backed reminder store.
func NewStore(db *storage.DB) Store {
	spec := storage.Spec{
		Table:   "reminders",
		Indexed: []string{"created_by", "room_id", "status", "created_at"},
	}
	repo := storage.NewRepo(db, spec, func(r *Reminder) (string, map[string]any) {
		return r.ID, map[string]any{
			"created_by": r.CreatedBy,
			"room_id":    r.RoomID,
			"status":     string(r.Status),
			"created_at": r.CreatedAt.UnixMilli(),
		}
	})
	return &sqlStore{repo: repo}
}

func (s *sqlStore) Upsert(ctx context.Context, r *Reminder) error {
	if err := r.validate(); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, r)
}

func (s *sqlStore) Get(ctx context.Context, id string) (*Reminder, error) {
	r, err := s.repo.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Normalize()
	return r, nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *sqlStore) FindByStatus(ctx context.Context, status Status) ([]*Reminder, error) {
	rs, err := s.repo.Find(ctx,
		storage.Query{"status": string(status)},
		storage.OrderDesc("created_at"))
	return normalizeAll(rs), err
}

func (s *sqlStore) FindByOwner(ctx context.Context, ownerID int64) ([]*Reminder, error) {
	rs, err := s.repo.Find(ctx,
		storage.Query{"created_by": ownerID},
		storage.OrderDesc("created_at"))
	return normalizeAll(rs), err
}

func (s *sqlStore) All(ctx context.Context) ([]*Reminder, error) {
	rs, err := s.repo.Find(ctx, nil, storage.OrderDesc("created_at"))
	return normalizeAll(rs), err
}

func (s *sqlStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	// created_at is the only indexed time column; completed reminders
	// older than the window by creation are old enough to sweep.
	rs, err := s.repo.Find(ctx, storage.Query{"status": string(StatusCompleted)})
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rs {
		at := r.CreatedAt
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		if at.Before(cutoff) {
			if err := s.repo.Delete(ctx, r.ID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (s *sqlStore) CountByStatus(ctx context.Context, status Status) (int64, error) {
	return s.repo.Count(ctx, storage.Query{"status": string(status)})
}

func normalizeAll(rs []*Reminder) []*Reminder {
	for _, r := range rs {
		r.Normalize()
	}
	return rs
}
