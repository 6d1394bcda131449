// Package monitor implements the character monitoring core: the durable
// checkpoint store, the per-character update protocol, the snapshot diff,
// and the round-robin scheduler that drives it all.
package monitor

import (
	"context"
	"time"
)

// Skill is one entry of a character's skill sheet.
type Skill struct {
	SkillID            int32 `json:"skill_id"`
	SkillpointsInSkill int64 `json:"skillpoints_in_skill"`
	TrainedSkillLevel  int   `json:"trained_skill_level"`
	ActiveSkillLevel   int   `json:"active_skill_level"`
}

// QueueItem is one entry of a character's skill queue, ordered by queue
// position. A nil FinishDate means training is paused; by API convention
// such an item only appears last.
type QueueItem struct {
	SkillID       int32      `json:"skill_id"`
	FinishDate    *time.Time `json:"finish_date,omitempty"`
	FinishedLevel int        `json:"finished_level"`
	LevelStartSP  int64      `json:"level_start_sp"`
	LevelEndSP    int64      `json:"level_end_sp"`
	QueuePosition int        `json:"queue_position"`
}

// Target addresses a notification destination: a chat plus an optional
// forum topic within it. The monitor treats it as opaque.
type Target struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id"`
}

// Entity is the transient in-memory scheduling record for one monitored
// character. Durable state lives in the Checkpoint.
type Entity struct {
	CharacterID int64
	// Failures counts consecutive failed update cycles. Reset to zero by
	// any fully successful cycle.
	Failures int
}

// ChangeKind classifies a detected skill change.
type ChangeKind int

const (
	// ChangeCompleted means a skill finished training a level.
	ChangeCompleted ChangeKind = iota
	// ChangeInjected means a skill appeared untrained.
	ChangeInjected
)

// Change is one human-relevant difference between two skill snapshots.
type Change struct {
	Kind    ChangeKind
	SkillID int32
	Level   int
}

// ProgressSource is the external capability that turns a refresh token
// into fresh data about a character.
type ProgressSource interface {
	// Refresh exchanges the stored refresh token for an access token and
	// a rotated refresh token.
	Refresh(ctx context.Context, refreshToken string) (access, newRefresh string, err error)
	FetchSkills(ctx context.Context, accessToken string, characterID int64) ([]Skill, error)
	FetchQueue(ctx context.Context, accessToken string, characterID int64) ([]QueueItem, error)
	// SkillName resolves a skill id to its display name. Results may be
	// cached indefinitely; skill ids are immutable reference data.
	SkillName(ctx context.Context, skillID int32) (string, error)
}

// Notifier delivers text to a target. ReplaceLast edits the most recent
// message the bot posted to the target, so a target can hold one rolling
// status message instead of an accumulating history.
type Notifier interface {
	Send(target Target, text string) error
	ReplaceLast(target Target, text string) error
}

// ChannelProvisioner creates the notification destinations for a newly
// registered character: a status target and an activity target.
type ChannelProvisioner interface {
	CreatePrivateChannel(ctx context.Context, ownerID int64, displayName string) (status, activity Target, err error)
}
