package app

import (
	"time"

	"rosterbot/internal/config"
	"rosterbot/internal/dispatch"
	"rosterbot/internal/storage"
	"rosterbot/internal/transport/telegram"
	"rosterbot/pkg/logx"
)

// The mapping from the raw config file to per-component settings lives
// here so the components stay free of string parsing.

func dispatchSettings(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	out := dispatch.Config{
		MaxRetries:    d.MaxRetries,
		FailThreshold: d.FailThreshold,
	}
	var err error
	if out.PollInterval, err = config.ParseDurationField("dispatch.poll_interval", d.PollInterval); err != nil {
		return dispatch.Config{}, err
	}
	if out.ShutdownDeadline, err = config.ParseDurationField("dispatch.shutdown_deadline", d.ShutdownDeadline); err != nil {
		return dispatch.Config{}, err
	}
	if out.RestartResetWindow, err = config.ParseDurationField("dispatch.restart_reset_window", d.RestartResetWindow); err != nil {
		return dispatch.Config{}, err
	}
	if out.RestartDelays, err = config.ParseDelayTable("dispatch.restart_delays", d.RestartDelays); err != nil {
		return dispatch.Config{}, err
	}
	if out.Pacing.InitialResponse, err = config.ParseRange("dispatch.pacing.initial_response", d.Pacing.InitialResponse); err != nil {
		return dispatch.Config{}, err
	}
	if out.Pacing.BetweenJobs, err = config.ParseRange("dispatch.pacing.between_jobs", d.Pacing.BetweenJobs); err != nil {
		return dispatch.Config{}, err
	}
	if out.Pacing.AfterError, err = config.ParseRange("dispatch.pacing.after_error", d.Pacing.AfterError); err != nil {
		return dispatch.Config{}, err
	}
	if out.Pacing.BetweenNotifications, err = config.ParseRange("dispatch.pacing.between_notifications", d.Pacing.BetweenNotifications); err != nil {
		return dispatch.Config{}, err
	}
	return out, nil
}

func telegramSettings(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: timeout,
		GroupChatID: cfg.Telegram.GroupChatID,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func storageSettings(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func loggingSettings(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

const (
	defaultPruneSchedule = "0 4 * * *"
	defaultStatsSchedule = "@hourly"
	defaultPruneKeep     = 30 * 24 * time.Hour
)

type maintenanceSettings struct {
	pruneSchedule string
	statsSchedule string
	pruneKeep     time.Duration
}

func maintenanceFrom(cfg *config.Config) (maintenanceSettings, error) {
	out := maintenanceSettings{
		pruneSchedule: cfg.Maintenance.PruneSchedule,
		statsSchedule: cfg.Maintenance.StatsSchedule,
		pruneKeep:     defaultPruneKeep,
	}
	if out.pruneSchedule == "" {
		out.pruneSchedule = defaultPruneSchedule
	}
	if out.statsSchedule == "" {
		out.statsSchedule = defaultStatsSchedule
	}
	keep, err := config.ParseDurationField("maintenance.prune_keep", cfg.Maintenance.PruneKeep)
	if err != nil {
		return maintenanceSettings{}, err
	}
	if keep > 0 {
		out.pruneKeep = keep
	}
	return out, nil
}
