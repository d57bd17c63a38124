package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("storage: not found")
	// ErrNotIndexed is returned when a query filters or orders on a
	// column the table spec does not declare.
	ErrNotIndexed = errors.New("storage: column not indexed")
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}
