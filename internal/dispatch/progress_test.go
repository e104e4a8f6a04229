package dispatch

import (
	"sync/atomic"
	"testing"

	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

type capturedSignals struct {
	completed atomic.Int64
	failed    atomic.Int64
	last      atomic.Value // Summary
}

func newTrackedService(t *testing.T, cfg Config) (*Service, *capturedSignals) {
	t.Helper()
	sig := &capturedSignals{}
	svc := New(cfg, logx.Nop(), nil, Callbacks{
		OnDocumentCompleted: func(s Summary) {
			sig.completed.Add(1)
			sig.last.Store(s)
		},
		OnDocumentFailed: func(s Summary) {
			sig.failed.Add(1)
			sig.last.Store(s)
		},
	})
	return svc, sig
}

func (c *capturedSignals) summary(t *testing.T) Summary {
	t.Helper()
	v := c.last.Load()
	if v == nil {
		t.Fatal("no terminal signal captured")
	}
	return v.(Summary)
}

func TestExactlyOneTerminalSignal(t *testing.T) {
	t.Parallel()
	svc, sig := newTrackedService(t, Config{FailThreshold: 3})
	svc.InitDocument("doc", 4, transport.UserRef{UserID: 7})

	for i := 0; i < 4; i++ {
		svc.trackCompletion("doc", Outcome{Success: true, Label: "line"})
	}
	if got := sig.completed.Load() + sig.failed.Load(); got != 1 {
		t.Fatalf("terminal signals = %d, want exactly 1", got)
	}

	svc.store.mu.Lock()
	_, exists := svc.store.progress["doc"]
	svc.store.mu.Unlock()
	if exists {
		t.Fatal("progress record still present after finalize")
	}
	if s := sig.summary(t); s.Owner.UserID != 7 || len(s.Results) != 4 {
		t.Fatalf("summary = %+v, want owner 7 and 4 results", s)
	}
}

func TestFailThresholdClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		failures  int
		successes int
		wantFail  bool
	}{
		{name: "below threshold", failures: 2, successes: 3, wantFail: false},
		{name: "at threshold", failures: 3, successes: 2, wantFail: true},
		{name: "all success", failures: 0, successes: 5, wantFail: false},
		{name: "all failed", failures: 5, successes: 0, wantFail: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, sig := newTrackedService(t, Config{FailThreshold: 3})
			svc.InitDocument("doc", tt.failures+tt.successes, transport.UserRef{})
			for i := 0; i < tt.failures; i++ {
				svc.trackCompletion("doc", Outcome{Success: false, Label: "line", Detail: "nope"})
			}
			for i := 0; i < tt.successes; i++ {
				svc.trackCompletion("doc", Outcome{Success: true, Label: "line"})
			}

			if tt.wantFail {
				if sig.failed.Load() != 1 || sig.completed.Load() != 0 {
					t.Fatalf("signals = (completed %d, failed %d), want failed", sig.completed.Load(), sig.failed.Load())
				}
			} else {
				if sig.completed.Load() != 1 || sig.failed.Load() != 0 {
					t.Fatalf("signals = (completed %d, failed %d), want completed", sig.completed.Load(), sig.failed.Load())
				}
			}
			if s := sig.summary(t); s.Failed != tt.failures {
				t.Fatalf("summary.Failed = %d, want %d", s.Failed, tt.failures)
			}
		})
	}
}

func TestUnknownDocumentCompletionIsNoOp(t *testing.T) {
	t.Parallel()
	svc, sig := newTrackedService(t, Config{})
	svc.trackCompletion("ghost", Outcome{Success: true})

	if got := sig.completed.Load() + sig.failed.Load(); got != 0 {
		t.Fatalf("terminal signals = %d, want 0", got)
	}
	svc.store.mu.Lock()
	_, created := svc.store.progress["ghost"]
	svc.store.mu.Unlock()
	if created {
		t.Fatal("unknown completion created a progress record")
	}
}

func TestLateCompletionAfterFinalizeIsNoOp(t *testing.T) {
	t.Parallel()
	svc, sig := newTrackedService(t, Config{FailThreshold: 3})
	svc.InitDocument("doc", 1, transport.UserRef{})
	svc.trackCompletion("doc", Outcome{Success: true})
	// The record is gone; a straggler must not fire a second signal.
	svc.trackCompletion("doc", Outcome{Success: false})

	if got := sig.completed.Load(); got != 1 {
		t.Fatalf("completed signals = %d, want 1", got)
	}
	if got := sig.failed.Load(); got != 0 {
		t.Fatalf("failed signals = %d, want 0", got)
	}
}

func TestStatsCountCompletions(t *testing.T) {
	t.Parallel()
	svc, _ := newTrackedService(t, Config{FailThreshold: 3})
	svc.InitDocument("doc", 3, transport.UserRef{})
	svc.trackCompletion("doc", Outcome{Success: true})
	svc.trackCompletion("doc", Outcome{Success: false})

	st := svc.Stats()
	if st.TotalCompleted != 2 || st.TotalFailed != 1 {
		t.Fatalf("stats = %+v, want TotalCompleted 2, TotalFailed 1", st)
	}
	if st.DocumentsTracked != 1 {
		t.Fatalf("DocumentsTracked = %d, want 1", st.DocumentsTracked)
	}
}
