package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"rosterbot/pkg/logx"
)

// debounce absorbs editor write bursts (rename + chmod + multiple
// writes) into one reload.
const debounce = 250 * time.Millisecond

// Manager holds the current config and re-parses the file on change.
type Manager struct {
	path string
	log  logx.Logger

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64
}

func NewManager(path string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{path: path, log: log}
}

// SetLogger swaps the logger once the full log pipeline is up. The
// manager is typically created with a bootstrap console logger.
func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// Load parses, validates and commits the file.
func (m *Manager) Load() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hash(cfg)
	m.mu.Unlock()
}

// Watch re-parses the file whenever it changes and calls onChange with
// the committed result. Invalid files are logged and skipped, keeping
// the previous config active. Watch blocks until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors replace files via rename, which
	// drops a watch on the file itself.
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(m.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watcher error", logx.Err(err))
		case <-fire:
			cfg, err := Load(m.path)
			if err != nil {
				m.log.Warn("config reload rejected; keeping previous", logx.Err(err))
				continue
			}
			m.mu.RLock()
			unchanged := hash(cfg) == m.lastHash
			m.mu.RUnlock()
			if unchanged {
				continue
			}
			m.commit(cfg)
			m.log.Info("config reloaded", logx.String("path", m.path))
			if onChange != nil {
				onChange(cfg)
			}
		}
	}
}
