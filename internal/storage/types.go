package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the job-outcome store.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "" or "none": storage disabled (outcomes are log-only)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// JobOutcome is the durable record of one finished job. The external
// reconciliation pass reads these rows after a restart to decide which
// roster lines still need work.
type JobOutcome struct {
	JobID      string
	DocumentID string
	LineID     int64
	Kind       string
	Label      string
	Success    bool
	Attempts   int
	Detail     string
	FinishedAt time.Time
}

// Store is the persistence API used by the dispatcher and maintenance.
type Store interface {
	RecordJobOutcome(ctx context.Context, o JobOutcome) error
	OutcomesByDocument(ctx context.Context, documentID string) ([]JobOutcome, error)
	PruneOutcomes(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
