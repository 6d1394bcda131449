package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// checkpointVersion tags the on-disk record layout. Readers fail closed on
// anything else rather than guessing defaults for unknown layouts.
const checkpointVersion = 1

var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCorruptCheckpoint  = errors.New("corrupt checkpoint")
)

// Checkpoint is the durable per-character record. It is never deleted:
// suspension is recorded, not erased, so re-authentication can resurrect
// the same record and keep its notification targets.
type Checkpoint struct {
	Version        int     `json:"version"`
	RefreshToken   string  `json:"refresh_token"`
	Suspended      bool    `json:"suspended"`
	CharacterID    int64   `json:"character_id"`
	CharacterName  string  `json:"character_name"`
	OwnerID        int64   `json:"owner_id"`
	StatusTarget   Target  `json:"status_target"`
	ActivityTarget Target  `json:"activity_target"`
	Skills         []Skill `json:"skills"`
}

// CheckpointStore persists one JSON record per character id under a single
// directory. Writes are full overwrites through a temp file + rename so a
// concurrent reader never observes a partially written record.
type CheckpointStore struct {
	dir string
	log zerolog.Logger
}

func NewCheckpointStore(dir string, log zerolog.Logger) (*CheckpointStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &CheckpointStore{dir: dir, log: log}, nil
}

func (s *CheckpointStore) path(characterID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("char-%d.json", characterID))
}

// Read loads the checkpoint for a character. It returns
// ErrCheckpointNotFound if no record exists and ErrCorruptCheckpoint if
// the record cannot be decoded or carries an unknown version.
func (s *CheckpointStore) Read(characterID int64) (*Checkpoint, error) {
	b, err := os.ReadFile(s.path(characterID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCheckpointNotFound
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorruptCheckpoint, cp.Version)
	}
	return &cp, nil
}

// Write atomically overwrites the character's record.
func (s *CheckpointStore) Write(characterID int64, cp *Checkpoint) error {
	cp.Version = checkpointVersion
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(characterID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// All loads every checkpoint in the storage directory, in directory
// enumeration order. Unreadable records are skipped with a warning; they
// must not take the process down, but they must not enter the registry
// either.
func (s *CheckpointStore) All() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []*Checkpoint
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "char-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(name[len("char-"):len(name)-len(".json")], 10, 64)
		if err != nil {
			continue
		}
		cp, err := s.Read(id)
		if err != nil {
			s.log.Warn().Int64("character_id", id).Err(err).Msg("skipping unreadable checkpoint")
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}
