package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reflexcoder/autoagent/internal/log"
)

// Manager owns the on-disk config file and keeps the in-memory copy in
// sync with external edits via fsnotify.
type Manager struct {
	path     string
	debounce time.Duration

	mu          sync.RWMutex
	cfg         Config
	onChange    func(Config)
	watching    bool
	ignoreUntil time.Time
}

type ManagerOption func(*Manager)

func WithConfigDir(dir string) ManagerOption {
	return func(m *Manager) {
		if dir != "" {
			m.path = filepath.Join(dir, "config.json")
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		if path != "" {
			m.path = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

func WithInitialConfig(cfg *Config) ManagerOption {
	return func(m *Manager) {
		if cfg != nil {
			m.cfg = *cfg
		}
	}
}

// NewManager loads the config file at the resolved path, writing the
// initial (or default) config there when the file does not exist yet.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(m)
	}

	if m.path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			if dir, err = os.Getwd(); err != nil {
				return nil, err
			}
		}
		m.path = filepath.Join(dir, "autoagent", "config.json")
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	onDisk, err := readConfigFile(m.path)
	switch {
	case err == nil:
		m.cfg = *onDisk
	case errors.Is(err, os.ErrNotExist):
		if m.cfg == (Config{}) {
			m.cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		}
		if err := m.cfg.Validate(); err != nil {
			return nil, err
		}
		if err := writeConfigFile(m.path, m.cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// Update validates newCfg, persists it and notifies the change callback.
// The resulting file write will not retrigger the watcher.
func (m *Manager) Update(newCfg Config) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}
	if sameConfig(m.Get(), newCfg) {
		return nil
	}

	m.mu.Lock()
	m.ignoreUntil = time.Now().Add(2 * m.debounce)
	m.mu.Unlock()

	if err := writeConfigFile(m.path, newCfg); err != nil {
		return err
	}
	m.apply(newCfg)
	return nil
}

func (m *Manager) UpdateFromJSON(jsonStr string) error {
	var cfg Config
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Watch reloads the config whenever the file changes on disk. Callbacks
// fire after the debounce window, never for writes made by this Manager.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	logger := log.WithComponent("config")

	// A single pending timer coalesces bursts of write events.
	pending := time.NewTimer(m.debounce)
	if !pending.Stop() {
		<-pending.C
	}

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.mu.RLock()
			selfWrite := time.Now().Before(m.ignoreUntil)
			m.mu.RUnlock()
			if selfWrite {
				continue
			}
			pending.Reset(m.debounce)
		case <-pending.C:
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				logger.Warn().Err(err).Msg("config watcher error")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reload() {
	logger := log.WithComponent("config")
	cfg, err := readConfigFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			recreated := m.Get()
			if err := writeConfigFile(m.path, recreated); err != nil {
				logger.Error().Err(err).Msg("config recreate failed")
			}
			return
		}
		logger.Error().Err(err).Msg("config reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("config validation failed")
		return
	}
	if sameConfig(m.Get(), *cfg) {
		return
	}
	m.apply(*cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
}

func sameConfig(a, b Config) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return bytes.Equal(aj, bj)
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// writeConfigFile replaces the config atomically so watchers never see a
// partial file.
func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
