package jobs

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/storage"
)

// sqlite-backed implementations of LockStore and LastRunStore. Both
// tables are keyed by job id only; no extra index columns.

type sqlLockStore struct {
	repo *storage.Repo[JobLock]
}

func NewLockStore(db *storage.DB) LockStore {
	repo := storage.NewRepo(db, storage.Spec{Table: "job_locks"},
		func(l *JobLock) (string, map[string]any) { return l.JobID, nil })
	return &sqlLockStore{repo: repo}
}

func (s *sqlLockStore) Get(ctx context.Context, jobID string) (*JobLock, error) {
	l, err := s.repo.Get(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoLock
	}
	return l, err
}

func (s *sqlLockStore) Put(ctx context.Context, lock *JobLock) error {
	return s.repo.Upsert(ctx, lock)
}

type lastRunRecord struct {
	JobID   string    `json:"jobId"`
	LastRun time.Time `json:"lastRun"`
}

type sqlLastRunStore struct {
	repo *storage.Repo[lastRunRecord]
}

func NewLastRunStore(db *storage.DB) LastRunStore {
	repo := storage.NewRepo(db, storage.Spec{Table: "job_last_run"},
		func(r *lastRunRecord) (string, map[string]any) { return r.JobID, nil })
	return &sqlLastRunStore{repo: repo}
}

func (s *sqlLastRunStore) Get(ctx context.Context, jobID string) (time.Time, bool, error) {
	r, err := s.repo.Get(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return r.LastRun, true, nil
}

func (s *sqlLastRunStore) Set(ctx context.Context, jobID string, at time.Time) error {
	return s.repo.Upsert(ctx, &lastRunRecord{JobID: jobID, LastRun: at.UTC()})
}
