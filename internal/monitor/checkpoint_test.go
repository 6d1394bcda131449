package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *CheckpointStore {
	t.Helper()
	store, err := NewCheckpointStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}
	return store
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	cp := &Checkpoint{
		RefreshToken:   "tok-1",
		CharacterID:    42,
		CharacterName:  "Test Pilot",
		OwnerID:        7,
		StatusTarget:   Target{ChatID: -100, ThreadID: 11},
		ActivityTarget: Target{ChatID: -100, ThreadID: 12},
		Skills:         []Skill{{SkillID: 3300, TrainedSkillLevel: 4, SkillpointsInSkill: 90510}},
	}
	if err := store.Write(42, cp); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(42)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Version != checkpointVersion {
		t.Errorf("Version = %d, want %d", got.Version, checkpointVersion)
	}
	got.Version = 0
	cp.Version = 0
	if !reflect.DeepEqual(got, cp) {
		t.Errorf("Read() = %+v, want %+v", got, cp)
	}
}

func TestCheckpointStoreNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Read(99)
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Read on empty store: err = %v, want ErrCheckpointNotFound", err)
	}
}

func TestCheckpointStoreCorrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"garbage", "not json at all"},
		{"truncated", `{"version":1,"charac`},
		{"unknown version", `{"version":9,"character_id":42}`},
		{"missing version", `{"character_id":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			store, err := NewCheckpointStore(dir, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewCheckpointStore: %v", err)
			}
			if err := os.WriteFile(filepath.Join(dir, "char-42.json"), []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Read(42); !errors.Is(err, ErrCorruptCheckpoint) {
				t.Errorf("Read: err = %v, want ErrCorruptCheckpoint", err)
			}
		})
	}
}

func TestCheckpointStoreWriteOverwrites(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	if err := store.Write(1, &Checkpoint{CharacterID: 1, RefreshToken: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(1, &Checkpoint{CharacterID: 1, RefreshToken: "new", Suspended: true}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.RefreshToken != "new" || !got.Suspended {
		t.Errorf("Read() = %+v, want overwritten record", got)
	}
}

func TestCheckpointStoreAll(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}

	if err := store.Write(1, &Checkpoint{CharacterID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(2, &Checkpoint{CharacterID: 2, Suspended: true}); err != nil {
		t.Fatal(err)
	}
	// A corrupt record and unrelated files must be skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "char-3.json"), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	cps, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("All() returned %d checkpoints, want 2", len(cps))
	}
	ids := map[int64]bool{}
	for _, cp := range cps {
		ids[cp.CharacterID] = true
	}
	if !ids[1] || !ids[2] {
		t.Errorf("All() ids = %v, want 1 and 2", ids)
	}
}
