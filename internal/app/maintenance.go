package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"rosterbot/internal/dispatch"
	"rosterbot/internal/storage"
	"rosterbot/pkg/logx"
)

// maintenance runs the periodic housekeeping jobs: pruning old outcome
// rows and logging a queue-stats heartbeat.
type maintenance struct {
	cfg   maintenanceSettings
	log   logx.Logger
	svc   *dispatch.Service
	store storage.Store
	cron  *cron.Cron
}

func newMaintenance(cfg maintenanceSettings, log logx.Logger, svc *dispatch.Service, store storage.Store) *maintenance {
	return &maintenance{cfg: cfg, log: log, svc: svc, store: store}
}

func (m *maintenance) start() {
	m.cron = cron.New()

	if m.store != nil {
		if _, err := m.cron.AddFunc(m.cfg.pruneSchedule, m.pruneOutcomes); err != nil {
			m.log.Warn("invalid prune schedule; pruning disabled",
				logx.String("schedule", m.cfg.pruneSchedule), logx.Err(err))
		}
	}
	if _, err := m.cron.AddFunc(m.cfg.statsSchedule, m.logStats); err != nil {
		m.log.Warn("invalid stats schedule; heartbeat disabled",
			logx.String("schedule", m.cfg.statsSchedule), logx.Err(err))
	}
	m.cron.Start()
}

func (m *maintenance) stop() {
	if m.cron == nil {
		return
	}
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		m.log.Warn("maintenance jobs still running at shutdown")
	}
}

func (m *maintenance) pruneOutcomes() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := time.Now().Add(-m.cfg.pruneKeep)
	n, err := m.store.PruneOutcomes(ctx, cutoff)
	if err != nil {
		m.log.Warn("outcome prune failed", logx.Err(err))
		return
	}
	m.log.Info("outcome store pruned",
		logx.Int64("rows", n), logx.Time("cutoff", cutoff))
}

func (m *maintenance) logStats() {
	st := m.svc.Stats()
	m.log.Info("queue stats",
		logx.Int("jobs_pending", st.JobsPending),
		logx.Int("notifications_pending", st.NotificationsPending),
		logx.Int("documents_tracked", st.DocumentsTracked),
		logx.Uint64("total_completed", st.TotalCompleted),
		logx.Uint64("total_failed", st.TotalFailed),
		logx.Uint64("jobs_processed", st.JobsProcessed),
		logx.Uint64("notifications_sent", st.NotificationsSent))
}
