package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rosterbot/internal/pacing"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

// ErrDrainTimeout is returned by Stop when the shutdown deadline
// elapsed with work still queued. The remaining work is dropped and
// re-derived from the outcome store on next startup.
var ErrDrainTimeout = errors.New("dispatch: shutdown deadline elapsed before queues drained")

// stopGrace bounds how long Stop waits for the loops to unwind after
// the supervisor context is cancelled.
const stopGrace = 2 * time.Second

// Service is the dispatch pipeline: admission API, both worker loops,
// and the aggregator. Construct one per process and inject it; there
// is no package-level instance.
type Service struct {
	log     logx.Logger
	store   *store
	persist PersistFunc
	cb      Callbacks

	cfgMu sync.Mutex
	cfg   Config

	supMu sync.Mutex
	sup   *rtsup.Supervisor

	inflight atomic.Int64

	jobsProcessed     atomic.Uint64
	notificationsSent atomic.Uint64
	lastJobAt         atomic.Int64 // unix nanos of last finished job
}

func New(cfg Config, log logx.Logger, persist PersistFunc, cb Callbacks) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		store:   newStore(),
		persist: persist,
		cb:      cb,
		cfg:     cfg.withDefaults(),
	}
}

// Apply replaces the tunable configuration. Loops pick the new values
// up on their next iteration.
func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.withDefaults()
	s.cfgMu.Unlock()
}

func (s *Service) config() Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// InitDocument registers a document expecting `expected` job outcomes.
// Calling it again for the same id discards earlier progress (last
// writer wins; admission calls it once per id in practice).
func (s *Service) InitDocument(docID string, expected int, owner transport.UserRef) {
	if s.store.isDraining() {
		s.log.Warn("document rejected during drain", logx.String("doc", docID))
		return
	}
	s.store.initDocument(docID, expected, owner)
	s.log.Debug("document registered",
		logx.String("doc", docID), logx.Int("expected", expected))
}

// EnqueueJob appends a job to the tail of the job queue. It never
// fails; during drain the job is logged and dropped.
func (s *Service) EnqueueJob(j Job) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if s.store.isDraining() {
		s.log.Warn("job rejected during drain",
			logx.String("doc", j.DocumentID), logx.String("job", j.ID))
		return
	}
	s.store.enqueueJob(j)
}

// EnqueueNotification appends a notification for best-effort delivery.
// It never fails; during drain the notification is logged and dropped.
func (s *Service) EnqueueNotification(n transport.Notification) {
	if s.store.isDraining() {
		s.log.Warn("notification rejected during drain",
			logx.Int64("chat", n.Target.ChatID))
		return
	}
	s.store.enqueueNotification(n)
}

// CancelDocument marks a document cancelled. Its still-queued jobs are
// recorded as failed without executing, so aggregation converges to a
// terminal signal as usual.
func (s *Service) CancelDocument(docID string) {
	s.store.cancelDocument(docID)
	s.log.Info("document cancelled", logx.String("doc", docID))
}

// PaceInitialResponse applies the initial-response delay window used
// before acknowledging a newly admitted document.
func (s *Service) PaceInitialResponse(ctx context.Context) error {
	return pacing.Wait(ctx, s.config().Pacing.InitialResponse)
}

// Stats returns an observability snapshot. Depths are advisory only.
func (s *Service) Stats() Stats {
	jobs, notes := s.store.depths()
	s.store.mu.Lock()
	tracked := len(s.store.progress)
	completed := s.store.totalCompleted
	failed := s.store.totalFailed
	s.store.mu.Unlock()
	return Stats{
		JobsPending:          jobs,
		NotificationsPending: notes,
		DocumentsTracked:     tracked,
		TotalCompleted:       completed,
		TotalFailed:          failed,
		JobsProcessed:        s.jobsProcessed.Load(),
		NotificationsSent:    s.notificationsSent.Load(),
	}
}

// Supervisor returns the internal supervisor for operational
// visibility, or nil before any worker has started.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.supMu.Lock()
	defer s.supMu.Unlock()
	return s.sup
}

func (s *Service) supervisorFor(ctx context.Context) *rtsup.Supervisor {
	s.supMu.Lock()
	defer s.supMu.Unlock()
	if s.sup == nil {
		s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))))
	}
	return s.sup
}

// StartJobWorker starts the serialized job loop under supervision.
func (s *Service) StartJobWorker(ctx context.Context, fn ExecuteFunc) {
	cfg := s.config()
	sup := s.supervisorFor(ctx)
	sup.GoRestart("job-worker", func(c context.Context) error {
		return s.jobLoop(c, fn)
	},
		rtsup.WithRestartDelays(cfg.RestartDelays),
		rtsup.WithResetWindow(cfg.RestartResetWindow))
	s.log.Info("job worker started",
		logx.Duration("poll", cfg.PollInterval), logx.Int("max_retries", cfg.MaxRetries))
}

// StartNotificationWorker starts the notification loop under supervision.
func (s *Service) StartNotificationWorker(ctx context.Context, fn SendFunc) {
	cfg := s.config()
	sup := s.supervisorFor(ctx)
	sup.GoRestart("notification-worker", func(c context.Context) error {
		return s.notificationLoop(c, fn)
	},
		rtsup.WithRestartDelays(cfg.RestartDelays),
		rtsup.WithResetWindow(cfg.RestartResetWindow))
	s.log.Info("notification worker started")
}

// Stop disables intake, lets the loops drain both queues, and returns
// once they are empty or the deadline elapses. On timeout the loops
// are force-cancelled and remaining work is dropped with a warning.
// A non-positive deadline uses the configured ShutdownDeadline.
func (s *Service) Stop(deadline time.Duration) error {
	cfg := s.config()
	if deadline <= 0 {
		deadline = cfg.ShutdownDeadline
	}
	s.store.setDraining(true)
	s.log.Info("draining queues", logx.Duration("deadline", deadline))

	poll := cfg.PollInterval
	if poll > deadline {
		poll = deadline
	}
	drained := false
	limit := time.Now().Add(deadline)
	for {
		jobs, notes := s.store.depths()
		if jobs == 0 && notes == 0 && s.inflight.Load() == 0 {
			drained = true
			break
		}
		if !time.Now().Before(limit) {
			break
		}
		time.Sleep(poll)
	}

	s.supMu.Lock()
	sup := s.sup
	s.sup = nil
	s.supMu.Unlock()
	if sup != nil {
		wctx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if err := sup.Stop(wctx); err != nil {
			s.log.Warn("worker loops did not unwind in time", logx.Err(err))
		}
	}

	if !drained {
		jobs, notes := s.store.depths()
		s.log.Warn("shutdown deadline elapsed; dropping queued work",
			logx.Int("jobs_pending", jobs),
			logx.Int("notifications_pending", notes))
		return ErrDrainTimeout
	}
	s.log.Info("queues drained")
	return nil
}
