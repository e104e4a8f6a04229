package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

func testConfig() Config {
	return Config{
		PollInterval:  5 * time.Millisecond,
		MaxRetries:    2,
		FailThreshold: 3,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestJobWorkerExecutesInEnqueueOrder(t *testing.T) {
	t.Parallel()
	svc, _ := newTrackedService(t, testConfig())
	svc.InitDocument("doc", 10, transport.UserRef{})

	var mu sync.Mutex
	var order []string
	for i := 0; i < 10; i++ {
		svc.EnqueueJob(Job{ID: fmt.Sprintf("j%02d", i), DocumentID: "doc", Kind: JobAddMember})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return "ok", nil
	})

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 10
	})
	mu.Lock()
	defer mu.Unlock()
	for i, id := range order {
		if want := fmt.Sprintf("j%02d", i); id != want {
			t.Fatalf("execution order[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestJobRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	svc, sig := newTrackedService(t, testConfig()) // MaxRetries = 2
	svc.InitDocument("doc", 1, transport.UserRef{})
	svc.EnqueueJob(Job{ID: "j1", DocumentID: "doc", Kind: JobAddMember, Label: "alice"})

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("flood wait")
		}
		return "member added", nil
	})

	waitFor(t, 3*time.Second, func() bool { return sig.completed.Load() == 1 })
	if got := calls.Load(); got != 3 {
		t.Fatalf("execute invocations = %d, want 3", got)
	}
	s := sig.summary(t)
	if s.Failed != 0 || !s.Results[0].Success {
		t.Fatalf("summary = %+v, want success after retries", s)
	}
	if s.Results[0].Detail != "member added" {
		t.Fatalf("detail = %q, want %q", s.Results[0].Detail, "member added")
	}
}

func TestJobExhaustsRetriesAndCountsOnce(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.FailThreshold = 1
	svc, sig := newTrackedService(t, cfg)
	svc.InitDocument("doc", 1, transport.UserRef{})
	svc.EnqueueJob(Job{ID: "j1", DocumentID: "doc", Kind: JobAddMember})

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		calls.Add(1)
		return "", errors.New("user privacy restricted")
	})

	waitFor(t, 3*time.Second, func() bool { return sig.failed.Load() == 1 })
	if got := calls.Load(); got != 3 { // MaxRetries=2 -> 3 attempts
		t.Fatalf("execute invocations = %d, want 3", got)
	}
	if s := sig.summary(t); s.Failed != 1 {
		t.Fatalf("summary.Failed = %d, want 1 (counted once)", s.Failed)
	}
}

func TestPersistHookReceivesFinalOutcome(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var recs []OutcomeRecord
	done := make(chan struct{})
	svc := New(testConfig(), logx.Nop(), func(ctx context.Context, rec OutcomeRecord) error {
		mu.Lock()
		recs = append(recs, rec)
		mu.Unlock()
		return errors.New("db locked") // persist failure must not fail the job
	}, Callbacks{OnDocumentCompleted: func(Summary) { close(done) }})

	svc.InitDocument("doc", 1, transport.UserRef{})
	svc.EnqueueJob(Job{ID: "j1", DocumentID: "doc", LineID: 42, Kind: JobAddMember, Label: "bob"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		return "ok", nil
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("document did not complete")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(recs) != 1 {
		t.Fatalf("persisted records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.JobID != "j1" || rec.LineID != 42 || !rec.Success || rec.Attempts != 1 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestCancelledDocumentSkipsExecution(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.FailThreshold = 2
	svc, sig := newTrackedService(t, cfg)
	svc.InitDocument("doc", 2, transport.UserRef{})
	svc.EnqueueJob(Job{ID: "j1", DocumentID: "doc"})
	svc.EnqueueJob(Job{ID: "j2", DocumentID: "doc"})
	svc.CancelDocument("doc")

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		calls.Add(1)
		return "ok", nil
	})

	waitFor(t, 3*time.Second, func() bool { return sig.failed.Load() == 1 })
	if calls.Load() != 0 {
		t.Fatalf("execute invoked %d times for cancelled document, want 0", calls.Load())
	}
	s := sig.summary(t)
	if s.Failed != 2 || s.Results[0].Detail != "document cancelled" {
		t.Fatalf("summary = %+v, want 2 cancelled failures", s)
	}
}

func TestNotificationWorkerDropsFailedDeliveries(t *testing.T) {
	t.Parallel()
	svc, _ := newTrackedService(t, testConfig())
	svc.EnqueueNotification(transport.Notification{Target: transport.ChatTarget{ChatID: 1}, Text: "a"})
	svc.EnqueueNotification(transport.Notification{Target: transport.ChatTarget{ChatID: 2}, Text: "b"})
	svc.EnqueueNotification(transport.Notification{Target: transport.ChatTarget{ChatID: 3}, Text: "c"})

	var attempts atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartNotificationWorker(ctx, func(ctx context.Context, n transport.Notification) error {
		attempts.Add(1)
		if n.Target.ChatID == 2 {
			return errors.New("blocked by user")
		}
		return nil
	})

	waitFor(t, 3*time.Second, func() bool { return attempts.Load() == 3 })
	waitFor(t, time.Second, func() bool { return svc.Stats().NotificationsPending == 0 })
	if sent := svc.Stats().NotificationsSent; sent != 2 {
		t.Fatalf("NotificationsSent = %d, want 2 (failed delivery dropped, not retried)", sent)
	}
}

func TestStopDrainsQueues(t *testing.T) {
	t.Parallel()
	svc, sig := newTrackedService(t, testConfig())
	svc.InitDocument("doc", 3, transport.UserRef{})
	for i := 0; i < 3; i++ {
		svc.EnqueueJob(Job{DocumentID: "doc"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		return "ok", nil
	})

	if err := svc.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if st := svc.Stats(); st.JobsPending != 0 {
		t.Fatalf("JobsPending = %d after drain, want 0", st.JobsPending)
	}
	if sig.completed.Load() != 1 {
		t.Fatalf("completed signals = %d, want 1", sig.completed.Load())
	}
}

func TestStopReturnsAtDeadlineWithWorkRemaining(t *testing.T) {
	t.Parallel()
	svc, _ := newTrackedService(t, testConfig())
	svc.InitDocument("doc", 5, transport.UserRef{})
	for i := 0; i < 5; i++ {
		svc.EnqueueJob(Job{DocumentID: "doc"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartJobWorker(ctx, func(ctx context.Context, job *Job) (string, error) {
		// Each job takes longer than deadline/N.
		select {
		case <-time.After(80 * time.Millisecond):
		case <-ctx.Done():
		}
		return "ok", nil
	})

	start := time.Now()
	err := svc.Stop(150 * time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("Stop error = %v, want ErrDrainTimeout", err)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("Stop took %v, want bounded by deadline plus grace", elapsed)
	}
	if st := svc.Stats(); st.JobsPending == 0 {
		t.Fatal("JobsPending = 0, want undrained work remaining")
	}
}

func TestEnqueueRejectedDuringDrain(t *testing.T) {
	t.Parallel()
	svc, _ := newTrackedService(t, testConfig())
	_ = svc.Stop(10 * time.Millisecond)

	svc.EnqueueJob(Job{DocumentID: "doc"})
	svc.EnqueueNotification(transport.Notification{Text: "late"})
	st := svc.Stats()
	if st.JobsPending != 0 || st.NotificationsPending != 0 {
		t.Fatalf("stats = %+v, want intake rejected during drain", st)
	}
}
