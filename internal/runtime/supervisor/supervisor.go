// Package supervisor runs named loops under a shared context with
// panic recovery and table-driven restart backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"rosterbot/pkg/logx"
)

var defaultRestartDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

const defaultResetWindow = 5 * time.Minute

// Supervisor owns goroutines tied to one context.
//
// Loops started with GoRestart are restarted after a crash using a
// capped delay table; the restart counter resets once a loop has run
// without crashing for longer than the reset window.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log logx.Logger

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}

	mu    sync.Mutex
	stats map[string]*loopStats
}

// LoopStats is a best-effort view of one supervised loop, for
// observability only.
type LoopStats struct {
	Name        string        `json:"name"`
	Running     bool          `json:"running"`
	Restarts    uint64        `json:"restarts"`
	Panics      uint64        `json:"panics"`
	LastStartAt time.Time     `json:"last_start_at"`
	LastStopAt  time.Time     `json:"last_stop_at"`
	LastErr     string        `json:"last_err,omitempty"`
	LastUptime  time.Duration `json:"last_uptime"`
}

type loopStats struct {
	name        string
	running     bool
	restarts    uint64
	panics      uint64
	lastStartAt time.Time
	lastStopAt  time.Time
	lastErr     string
	lastUptime  time.Duration
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		stats:  map[string]*loopStats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for loops to exit.
func (s *Supervisor) Cancel() { s.cancel() }

// Snapshot returns per-loop stats sorted by name.
func (s *Supervisor) Snapshot() []LoopStats {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	out := make([]LoopStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, LoopStats{
			Name:        st.name,
			Running:     st.running,
			Restarts:    st.restarts,
			Panics:      st.panics,
			LastStartAt: st.lastStartAt,
			LastStopAt:  st.lastStopAt,
			LastErr:     st.lastErr,
			LastUptime:  st.lastUptime,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) noteStart(name string, restart bool) time.Time {
	now := time.Now()
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &loopStats{name: name}
		s.stats[name] = st
	}
	st.running = true
	if restart {
		st.restarts++
	}
	st.lastStartAt = now
	s.mu.Unlock()
	return now
}

func (s *Supervisor) noteStop(name string, startedAt time.Time, err error, panicked bool) {
	now := time.Now()
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &loopStats{name: name}
		s.stats[name] = st
	}
	st.running = false
	st.lastStopAt = now
	st.lastUptime = now.Sub(startedAt)
	if panicked {
		st.panics++
	}
	if err != nil {
		st.lastErr = err.Error()
	}
	s.mu.Unlock()
}

// Go runs fn once with panic recovery.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		startedAt := s.noteStart(name, false)
		err, pan, stack := runSafe(s.ctx, fn)
		if pan != nil {
			err = fmt.Errorf("panic in %s: %v", name, pan)
			if !s.log.IsZero() {
				s.log.Error("goroutine panicked",
					logx.String("name", name), logx.Any("panic", pan), logx.String("stack", stack))
			}
		}
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.noteStop(name, startedAt, err, pan != nil)
	}()
}

// RestartOption configures GoRestart.
type RestartOption func(*restartCfg)

type restartCfg struct {
	delays      []time.Duration
	resetWindow time.Duration
}

// WithRestartDelays sets the backoff table used between restarts.
// Restart n waits delays[min(n, len-1)], so the table caps at its last entry.
func WithRestartDelays(delays []time.Duration) RestartOption {
	return func(c *restartCfg) {
		if len(delays) > 0 {
			c.delays = delays
		}
	}
}

// WithResetWindow sets how long a loop must run without crashing before
// its restart counter goes back to zero.
func WithResetWindow(d time.Duration) RestartOption {
	return func(c *restartCfg) {
		if d > 0 {
			c.resetWindow = d
		}
	}
}

// GoRestart runs fn and restarts it after errors or panics until the
// supervisor context is cancelled. A nil return is a clean exit and
// stops the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{delays: defaultRestartDelays, resetWindow: defaultResetWindow}
	for _, o := range opts {
		o(&cfg)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		restarts := 0
		for {
			if s.ctx.Err() != nil {
				return
			}
			startedAt := s.noteStart(name, restarts > 0)
			err, pan, stack := runSafe(s.ctx, fn)
			uptime := time.Since(startedAt)

			if pan != nil {
				if !s.log.IsZero() {
					s.log.Error("loop panicked",
						logx.String("name", name), logx.Any("panic", pan), logx.String("stack", stack))
				}
				err = fmt.Errorf("panic: %v", pan)
			}

			// Shutdown in progress: treat any exit as clean.
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.noteStop(name, startedAt, nil, pan != nil)
				return
			}
			if err == nil {
				s.noteStop(name, startedAt, nil, false)
				return
			}
			s.noteStop(name, startedAt, fmt.Errorf("%s: %w", name, err), pan != nil)

			// A loop that held up for the reset window earns a fresh
			// backoff table; rare crashes far apart must not inherit
			// maximal delay forever.
			if uptime >= cfg.resetWindow {
				restarts = 0
			}
			idx := restarts
			if idx >= len(cfg.delays) {
				idx = len(cfg.delays) - 1
			}
			delay := cfg.delays[idx]
			restarts++

			if !s.log.IsZero() {
				s.log.Warn("loop crashed; restarting",
					logx.String("name", name),
					logx.Int("restarts", restarts),
					logx.Duration("delay", delay),
					logx.Err(err))
			}
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
}

// runSafe invokes fn, converting a panic into (pan, stack) instead of
// unwinding past the supervisor.
func runSafe(ctx context.Context, fn func(ctx context.Context) error) (err error, pan any, stack string) {
	defer func() {
		if r := recover(); r != nil {
			pan = r
			stack = string(debug.Stack())
		}
	}()
	err = fn(ctx)
	return
}

// Stop cancels the context and waits for all loops, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every supervised goroutine has returned or ctx expires.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return nil
	}
}
