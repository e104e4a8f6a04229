package dispatch

import (
	"context"
	"time"

	"rosterbot/internal/pacing"
	"rosterbot/pkg/logx"
)

// jobLoop dequeues and executes jobs one at a time. It only returns on
// context cancellation; a panic out of the execute hook is a worker
// crash and unwinds to the supervisor.
func (s *Service) jobLoop(ctx context.Context, fn ExecuteFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := s.config()
		job, ok := s.store.dequeueJob()
		if !ok {
			// Empty queue: poll again shortly. Pacing is skipped here
			// so an idle worker picks up fresh work promptly.
			if err := pacing.Sleep(ctx, cfg.PollInterval); err != nil {
				return err
			}
			continue
		}

		s.runJob(ctx, cfg, fn, &job)

		if err := pacing.Wait(ctx, cfg.Pacing.BetweenJobs); err != nil {
			return err
		}
	}
}

func (s *Service) runJob(ctx context.Context, cfg Config, fn ExecuteFunc, job *Job) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	log := s.log.With(
		logx.String("doc", job.DocumentID),
		logx.String("job", job.ID),
		logx.String("kind", string(job.Kind)))

	if s.store.isCancelled(job.DocumentID) {
		log.Info("skipping job for cancelled document")
		out := Outcome{Success: false, Label: job.Label, Detail: "document cancelled"}
		s.finishJob(ctx, job, out)
		return
	}

	maxAttempts := cfg.MaxRetries + 1
	var detail string
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job.Attempts = attempt
		detail, err = fn(ctx, job)
		if err == nil {
			break
		}
		log.Warn("job attempt failed",
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", maxAttempts),
			logx.Err(err))
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			if perr := pacing.Wait(ctx, cfg.Pacing.AfterError); perr != nil {
				break
			}
		}
	}

	out := Outcome{Success: err == nil, Label: job.Label, Detail: detail}
	if err != nil {
		out.Detail = err.Error()
		log.Warn("job failed permanently", logx.Int("attempts", job.Attempts), logx.Err(err))
	} else {
		log.Debug("job succeeded", logx.Int("attempts", job.Attempts))
	}
	s.finishJob(ctx, job, out)
}

// finishJob records the final outcome with the aggregator and the
// persistence hook. Persistence failures never fail the job.
func (s *Service) finishJob(ctx context.Context, job *Job, out Outcome) {
	s.trackCompletion(job.DocumentID, out)
	s.jobsProcessed.Add(1)
	s.lastJobAt.Store(time.Now().UnixNano())

	if s.persist == nil {
		return
	}
	rec := OutcomeRecord{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		LineID:     job.LineID,
		Kind:       job.Kind,
		Label:      job.Label,
		Success:    out.Success,
		Attempts:   job.Attempts,
		Detail:     out.Detail,
		FinishedAt: time.Now(),
	}
	if err := s.persist(ctx, rec); err != nil {
		s.log.Warn("job outcome not persisted",
			logx.String("doc", job.DocumentID),
			logx.String("job", job.ID),
			logx.Err(err))
	}
}

// notificationLoop delivers queued notifications one at a time.
// Delivery is attempted once; failures are logged and the notification
// is discarded.
func (s *Service) notificationLoop(ctx context.Context, fn SendFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := s.config()
		n, ok := s.store.dequeueNotification()
		if !ok {
			if err := pacing.Sleep(ctx, cfg.PollInterval); err != nil {
				return err
			}
			continue
		}

		s.inflight.Add(1)
		if err := fn(ctx, n); err != nil {
			s.log.Warn("notification delivery failed; dropping",
				logx.Int64("chat", n.Target.ChatID),
				logx.Err(err))
		} else {
			s.notificationsSent.Add(1)
		}
		s.inflight.Add(-1)

		if err := pacing.Wait(ctx, cfg.Pacing.BetweenNotifications); err != nil {
			return err
		}
	}
}
