// Package app wires rosterbot's components together and owns the
// process lifecycle.
package app

import (
	"context"
	"errors"
	"time"

	"rosterbot/internal/config"
	"rosterbot/internal/dispatch"
	"rosterbot/internal/ingest"
	"rosterbot/internal/notifier"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/internal/storage"
	"rosterbot/internal/transport"
	"rosterbot/internal/transport/telegram"
	"rosterbot/pkg/logx"
)

type App struct {
	log    logx.Logger
	cfgMgr *config.Manager

	store   storage.Store
	adapter transport.Adapter
	svc     *dispatch.Service
	admit   *ingest.Admitter

	sup   *rtsup.Supervisor
	maint *maintenance

	shutdownDeadline time.Duration
}

func New(cfgPath string) (*App, error) {
	boot := logx.NewConsole("info")
	mgr := config.NewManager(cfgPath, boot)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	log, err := logx.New(loggingSettings(cfg))
	if err != nil {
		return nil, err
	}

	storeCfg, err := storageSettings(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	tgCfg, err := telegramSettings(cfg)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(tgCfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	dispCfg, err := dispatchSettings(cfg)
	if err != nil {
		return nil, err
	}

	// The notifier feeds summaries back into the notification queue,
	// so it is built against the service variable before the service
	// itself exists.
	var svc *dispatch.Service
	notif := notifier.New(log.With(logx.String("comp", "notifier")), func(n transport.Notification) {
		svc.EnqueueNotification(n)
	})

	var persist dispatch.PersistFunc
	if store != nil {
		persist = func(ctx context.Context, rec dispatch.OutcomeRecord) error {
			return store.RecordJobOutcome(ctx, storage.JobOutcome{
				JobID:      rec.JobID,
				DocumentID: rec.DocumentID,
				LineID:     rec.LineID,
				Kind:       string(rec.Kind),
				Label:      rec.Label,
				Success:    rec.Success,
				Attempts:   rec.Attempts,
				Detail:     rec.Detail,
				FinishedAt: rec.FinishedAt,
			})
		}
	}

	svc = dispatch.New(dispCfg, log.With(logx.String("comp", "dispatch")), persist, notif.Callbacks())

	maintCfg, err := maintenanceFrom(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:              log,
		cfgMgr:           mgr,
		store:            store,
		adapter:          adapter,
		svc:              svc,
		admit:            ingest.New(log.With(logx.String("comp", "ingest")), svc),
		shutdownDeadline: dispCfg.ShutdownDeadline,
	}
	a.maint = newMaintenance(maintCfg, log.With(logx.String("comp", "maintenance")), svc, store)
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	return a, nil
}

// Admitter exposes the admission surface used by whatever frontend
// (bot handler, CLI, HTTP) feeds parsed rosters in.
func (a *App) Admitter() *ingest.Admitter { return a.admit }

// Dispatch exposes the queue service for stats and manual control.
func (a *App) Dispatch() *dispatch.Service { return a.svc }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))

	a.svc.StartJobWorker(a.sup.Context(), a.executeJob)
	a.svc.StartNotificationWorker(a.sup.Context(), a.sendNotification)

	a.sup.GoRestart("config-watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c, a.applyConfig)
	})

	a.maint.start()
	a.log.Info("rosterbot started")
	return nil
}

// executeJob is the dispatcher's execute hook: it maps job kinds onto
// the platform adapter.
func (a *App) executeJob(ctx context.Context, job *dispatch.Job) (string, error) {
	switch job.Kind {
	case dispatch.JobAddMember:
		return a.adapter.AddMember(ctx, job.Group, job.User)
	case dispatch.JobCreateGroup:
		_, detail, err := a.adapter.CreateGroupSpace(ctx, job.Title, job.User)
		return detail, err
	default:
		return "", errors.New("unknown job kind: " + string(job.Kind))
	}
}

func (a *App) sendNotification(ctx context.Context, n transport.Notification) error {
	_, err := a.adapter.SendText(ctx, n.Target, n.Text, n.Options)
	return err
}

// applyConfig pushes reloadable settings to running components.
// Telegram, storage and logging changes need a restart and are only
// noted.
func (a *App) applyConfig(cfg *config.Config) {
	dispCfg, err := dispatchSettings(cfg)
	if err != nil {
		a.log.Warn("reloaded config has invalid dispatch settings; keeping previous", logx.Err(err))
		return
	}
	a.svc.Apply(dispCfg)
	a.shutdownDeadline = dispCfg.ShutdownDeadline
	a.log.Info("dispatch settings applied",
		logx.Int("max_retries", dispCfg.MaxRetries),
		logx.Int("fail_threshold", dispCfg.FailThreshold))
}

// Stop drains the queues within the shutdown deadline, then tears the
// rest down. Undrained work is logged by the dispatcher and lost.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("rosterbot stopping")
	a.maint.stop()

	drainErr := a.svc.Stop(a.shutdownDeadline)
	if drainErr != nil && !errors.Is(drainErr, dispatch.ErrDrainTimeout) {
		a.log.Warn("dispatch stop error", logx.Err(drainErr))
	}

	if a.sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.sup.Stop(wctx); err != nil {
			a.log.Warn("supervisor stop timed out", logx.Err(err))
		}
	}

	if err := a.adapter.Close(); err != nil {
		a.log.Warn("adapter close error", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close error", logx.Err(err))
		}
	}
	a.log.Info("rosterbot stopped")
	_ = a.log.Close()
	return drainErr
}
