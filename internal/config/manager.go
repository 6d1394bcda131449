package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manager loads the config file and optionally watches it for changes.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	log zerolog.Logger

	// lastHash tracks the last successfully committed config content.
	// It avoids redundant publishes when the editor causes multiple write
	// events without content changes.
	lastHash uint64
}

func NewManager(path string, log zerolog.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := yamlToJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load parses and commits the config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch re-parses the file on write events and calls onChange with the new
// config. The watch is placed on the parent directory because most editors
// replace the file rather than write it in place. Blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(m.path)

	// Debounce: editors emit bursts of events per save.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
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
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn().Err(err).Msg("config watch error")
		case <-pending:
			pending = nil
			cfg, err := m.Parse()
			if err != nil {
				m.log.Warn().Err(err).Msg("config reload rejected")
				continue
			}
			h := hashConfig(cfg)
			m.mu.Lock()
			if h == m.lastHash {
				m.mu.Unlock()
				continue
			}
			m.cfg = cfg
			m.lastHash = h
			m.mu.Unlock()
			m.log.Info().Msg("config reloaded")
			if onChange != nil {
				onChange(cfg)
			}
		}
	}
}

// Validate checks the fields the process cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.GuildChatID == 0 {
		return errors.New("telegram.guild_chat_id is required")
	}
	if strings.TrimSpace(c.ESI.ClientID) == "" || strings.TrimSpace(c.ESI.ClientSecret) == "" {
		return errors.New("esi.client_id and esi.client_secret are required")
	}
	if strings.TrimSpace(c.Monitor.StorageDir) == "" {
		return errors.New("monitor.storage_dir is required")
	}
	if strings.TrimSpace(c.Web.PublicURL) == "" {
		return errors.New("web.public_url is required")
	}
	if c.Monitor.RetryLimit < 0 {
		return errors.New("monitor.retry_limit must be >= 0")
	}
	if _, err := ParseDurationField("monitor.rotation_period", c.Monitor.RotationPeriod); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
		return err
	}
	return nil
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
