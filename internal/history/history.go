// Package history keeps a durable append-only log of the change events the
// monitor emitted: completed and injected skills, plus suspensions. The
// daily digest reads it back; it is also useful for operator inspection.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrDisabled = errors.New("history disabled")

// Event kinds.
const (
	KindCompleted = "completed"
	KindInjected  = "injected"
	KindSuspended = "suspended"
)

// Event records one emitted notification.
// Keep it compact and schema-stable.
type Event struct {
	At          time.Time `json:"at"`
	CharacterID int64     `json:"character_id"`
	Kind        string    `json:"kind"`
	SkillID     int32     `json:"skill_id,omitempty"`
	SkillName   string    `json:"skill_name,omitempty"`
	Level       int       `json:"level,omitempty"`
}

// Store is the minimal persistence API used by the monitor and digest.
type Store interface {
	Append(ctx context.Context, e Event) error
	// Since returns the character's events at or after the given time, in
	// append order.
	Since(ctx context.Context, characterID int64, since time.Time) ([]Event, error)
	Close() error
}

// Config configures history storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
