// Package config loads and watches the rosterbot configuration file.
//
// One file (JSON or YAML) configures everything. YAML is coerced to
// JSON so both formats go through the same strict decoder, and unknown
// fields are rejected. All durations are Go duration strings
// ("500ms", "10s", "1m").
package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging,omitempty"`
	Dispatch    DispatchConfig    `json:"dispatch,omitempty"`
	Storage     StorageConfig     `json:"storage,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`

	// GroupChatID is the community supergroup hosting forum topics.
	GroupChatID int64 `json:"group_chat_id"`

	// RatePerSec caps outbound Bot API calls.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"` // nil defaults to true
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// RangeConfig is a randomized delay window.
type RangeConfig struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

type PacingSections struct {
	InitialResponse      RangeConfig `json:"initial_response,omitempty"`
	BetweenJobs          RangeConfig `json:"between_jobs,omitempty"`
	AfterError           RangeConfig `json:"after_error,omitempty"`
	BetweenNotifications RangeConfig `json:"between_notifications,omitempty"`
}

// DispatchConfig tunes the queue/worker pipeline. Zero values fall
// back to dispatch package defaults.
type DispatchConfig struct {
	PollInterval       string         `json:"poll_interval,omitempty"`
	MaxRetries         int            `json:"max_retries,omitempty"`
	FailThreshold      int            `json:"fail_threshold,omitempty"`
	ShutdownDeadline   string         `json:"shutdown_deadline,omitempty"`
	RestartDelays      []string       `json:"restart_delays,omitempty"`
	RestartResetWindow string         `json:"restart_reset_window,omitempty"`
	Pacing             PacingSections `json:"pacing,omitempty"`
}

// StorageConfig selects the job-outcome store.
// Driver is "sqlite" or "none"/"" (disabled).
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MaintenanceConfig drives the cron schedules.
type MaintenanceConfig struct {
	// PruneSchedule is a cron expression for outcome-store pruning
	// (default "0 4 * * *").
	PruneSchedule string `json:"prune_schedule,omitempty"`

	// PruneKeep is how long outcome rows are retained (default 720h).
	PruneKeep string `json:"prune_keep,omitempty"`

	// StatsSchedule is a cron expression for the queue-stats heartbeat
	// log (default "@hourly").
	StatsSchedule string `json:"stats_schedule,omitempty"`
}

// Validate checks fields that cannot be defaulted away.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		return errors.New("logging.file.path is required when file logging is enabled")
	}
	if d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d != "" && d != "none" && d != "sqlite" {
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required for the sqlite driver")
	}
	// Durations must parse even when unused yet.
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"dispatch.poll_interval", c.Dispatch.PollInterval},
		{"dispatch.shutdown_deadline", c.Dispatch.ShutdownDeadline},
		{"dispatch.restart_reset_window", c.Dispatch.RestartResetWindow},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"maintenance.prune_keep", c.Maintenance.PruneKeep},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	for i, raw := range c.Dispatch.RestartDelays {
		if _, err := ParseDurationField(fmt.Sprintf("dispatch.restart_delays[%d]", i), raw); err != nil {
			return err
		}
	}
	for _, r := range []struct {
		path string
		rc   RangeConfig
	}{
		{"dispatch.pacing.initial_response", c.Dispatch.Pacing.InitialResponse},
		{"dispatch.pacing.between_jobs", c.Dispatch.Pacing.BetweenJobs},
		{"dispatch.pacing.after_error", c.Dispatch.Pacing.AfterError},
		{"dispatch.pacing.between_notifications", c.Dispatch.Pacing.BetweenNotifications},
	} {
		if _, err := ParseRange(r.path, r.rc); err != nil {
			return err
		}
	}
	return nil
}
