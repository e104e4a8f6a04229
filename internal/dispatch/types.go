package dispatch

import (
	"context"
	"time"

	"rosterbot/internal/pacing"
	"rosterbot/internal/transport"
)

type JobKind string

const (
	JobAddMember   JobKind = "add_to_group"
	JobCreateGroup JobKind = "create_group"
)

// Job is one atomic external side-effecting action. Jobs are immutable
// once enqueued except for Attempts, which the worker sets while
// retrying; a job is never shared across workers.
type Job struct {
	ID         string
	Kind       JobKind
	DocumentID string

	// LineID correlates the job with its source roster line in the
	// outcome store. Zero when unknown.
	LineID int64

	// Label is the human-readable name shown in summaries.
	Label string

	User  transport.UserRef
	Group transport.ChatTarget

	// Title is the space name for create_group jobs.
	Title string

	// Attempts is set by the worker: the number of execution attempts
	// actually made.
	Attempts int
}

// Outcome is the final result of one job.
type Outcome struct {
	Success bool
	Label   string
	Detail  string
}

// Summary is the terminal signal for a document.
type Summary struct {
	DocumentID string
	Owner      transport.UserRef
	Results    []Outcome
	Completed  int
	Failed     int
}

// Callbacks receive terminal document signals. Each fires exactly once
// per document, from the job worker goroutine. Nil callbacks are
// skipped.
type Callbacks struct {
	OnDocumentCompleted func(Summary)
	OnDocumentFailed    func(Summary)
}

// ExecuteFunc performs one job attempt. An error return is a failed
// attempt and is retried; a panic is treated as a worker crash and
// handled by the supervisor.
type ExecuteFunc func(ctx context.Context, job *Job) (detail string, err error)

// SendFunc delivers one notification. Called at most once per
// notification; failures are logged and the notification is dropped.
type SendFunc func(ctx context.Context, n transport.Notification) error

// OutcomeRecord is handed to the persistence hook after a job reaches
// its final outcome.
type OutcomeRecord struct {
	JobID      string
	DocumentID string
	LineID     int64
	Kind       JobKind
	Label      string
	Success    bool
	Attempts   int
	Detail     string
	FinishedAt time.Time
}

// PersistFunc durably records a job outcome, best-effort. A nil hook
// or a returned error never fails the job.
type PersistFunc func(ctx context.Context, rec OutcomeRecord) error

// PacingConfig holds the randomized delay windows for the several
// paced spots in the pipeline.
type PacingConfig struct {
	InitialResponse      pacing.Range
	BetweenJobs          pacing.Range
	AfterError           pacing.Range
	BetweenNotifications pacing.Range
}

type Config struct {
	// PollInterval is the sleep between dequeue attempts on an empty
	// queue, and the drain-check interval during Stop.
	PollInterval time.Duration

	// MaxRetries is the number of retries after the first attempt, so
	// each job runs at most MaxRetries+1 times.
	MaxRetries int

	// FailThreshold is the minimum failed-job count that classifies a
	// whole document as failed rather than partially successful.
	FailThreshold int

	// ShutdownDeadline bounds Stop when the caller passes none.
	ShutdownDeadline time.Duration

	// RestartDelays is the worker-crash backoff table; restart n waits
	// RestartDelays[min(n, len-1)].
	RestartDelays []time.Duration

	// RestartResetWindow is the continuous uptime after which a
	// worker's restart counter resets.
	RestartResetWindow time.Duration

	Pacing PacingConfig
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.FailThreshold <= 0 {
		c.FailThreshold = 3
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = 30 * time.Second
	}
	if len(c.RestartDelays) == 0 {
		c.RestartDelays = []time.Duration{
			1 * time.Second, 5 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second,
		}
	}
	if c.RestartResetWindow <= 0 {
		c.RestartResetWindow = 5 * time.Minute
	}
	return c
}

// Stats is an observability snapshot. Depth values are not atomic with
// subsequent dequeues; never use them for control decisions.
type Stats struct {
	JobsPending          int    `json:"jobs_pending"`
	NotificationsPending int    `json:"notifications_pending"`
	DocumentsTracked     int    `json:"documents_tracked"`
	TotalCompleted       uint64 `json:"total_completed"`
	TotalFailed          uint64 `json:"total_failed"`
	JobsProcessed        uint64 `json:"jobs_processed"`
	NotificationsSent    uint64 `json:"notifications_sent"`
}
