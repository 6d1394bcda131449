package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrAlreadyMonitored is returned when registration is attempted for a
// character that is already in the live registry.
var ErrAlreadyMonitored = errors.New("character is already actively monitored")

// Onboarding registers a new character or resurrects a suspended one.
type Onboarding struct {
	store   *CheckpointStore
	sched   *Scheduler
	updater *Updater
	prov    ChannelProvisioner
	notif   Notifier
	log     zerolog.Logger

	mu sync.Mutex
}

func NewOnboarding(store *CheckpointStore, sched *Scheduler, updater *Updater, prov ChannelProvisioner, notif Notifier, log zerolog.Logger) *Onboarding {
	return &Onboarding{
		store:   store,
		sched:   sched,
		updater: updater,
		prov:    prov,
		notif:   notif,
		log:     log,
	}
}

// Register starts monitoring a character and returns its status target.
//
// If the character is already live the call fails with
// ErrAlreadyMonitored. If a checkpoint already exists on disk (normally a
// suspended one) it is resurrected in place: the refresh token is
// replaced, the suspended flag cleared, and the existing notification
// targets reused; no new channel is provisioned. Otherwise a fresh
// checkpoint is created along with new notification targets.
//
// In every successful path the character is updated once immediately, out
// of band, before entering the rotation, so the user gets prompt feedback.
func (o *Onboarding) Register(ctx context.Context, characterID int64, characterName string, ownerID int64, refreshToken string) (Target, error) {
	// Registrations are serialized: the registry guard and the inline first
	// update must act as one step, or two concurrent flows for the same
	// character would both pass the guard and both enter the rotation.
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sched.Contains(characterID) {
		return Target{}, ErrAlreadyMonitored
	}

	cp, err := o.store.Read(characterID)
	switch {
	case err == nil:
		// Existing record: resurrect in place, keeping its targets.
		cp.RefreshToken = refreshToken
		cp.Suspended = false
		if err := o.store.Write(characterID, cp); err != nil {
			return Target{}, fmt.Errorf("resurrect checkpoint: %w", err)
		}
		o.log.Info().Int64("character_id", characterID).Msg("resuming monitoring for suspended character")

	case errors.Is(err, ErrCheckpointNotFound):
		status, activity, err := o.prov.CreatePrivateChannel(ctx, ownerID, characterName)
		if err != nil {
			return Target{}, fmt.Errorf("create channel: %w", err)
		}
		if err := o.notif.Send(status, "Update pending ..."); err != nil {
			o.log.Warn().Int64("character_id", characterID).Err(err).Msg("failed to send pending message")
		}
		cp = &Checkpoint{
			RefreshToken:   refreshToken,
			CharacterID:    characterID,
			CharacterName:  characterName,
			OwnerID:        ownerID,
			StatusTarget:   status,
			ActivityTarget: activity,
		}
		if err := o.store.Write(characterID, cp); err != nil {
			return Target{}, fmt.Errorf("write checkpoint: %w", err)
		}
		o.log.Info().Int64("character_id", characterID).Str("name", characterName).Msg("monitoring new character")

	default:
		return Target{}, fmt.Errorf("read checkpoint: %w", err)
	}

	ent := &Entity{CharacterID: characterID}
	if _, err := o.updater.Update(ctx, ent); err != nil {
		return Target{}, err
	}
	o.sched.Add(ent)
	return cp.StatusTarget, nil
}
