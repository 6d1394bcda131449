package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"skillwatch/internal/history"
)

// Outcome tells the scheduler what to do with an entity after a cycle.
type Outcome int

const (
	// OutcomeContinue keeps the entity in rotation.
	OutcomeContinue Outcome = iota
	// OutcomeSuspend removes the entity from rotation; its checkpoint has
	// been marked suspended.
	OutcomeSuspend
)

// Updater runs one polling cycle for one character: refresh the token,
// fetch the skill sheet and queue, reconcile, diff against the last
// snapshot, notify, and persist. It owns the failure counter and the
// suspension decision.
type Updater struct {
	store  *CheckpointStore
	source ProgressSource
	notif  Notifier
	fmt    *Formatter
	hist   history.Store // may be nil
	log    zerolog.Logger

	now func() time.Time

	mu     sync.Mutex
	policy RetryPolicy
	period time.Duration
}

func NewUpdater(store *CheckpointStore, source ProgressSource, notif Notifier, hist history.Store, policy RetryPolicy, period time.Duration, log zerolog.Logger) *Updater {
	return &Updater{
		store:  store,
		source: source,
		notif:  notif,
		fmt:    NewFormatter(source, log),
		hist:   hist,
		log:    log,
		now:    time.Now,
		policy: policy,
		period: period,
	}
}

// SetRetryLimit re-applies the failure budget, used by config hot reload.
// Entities already past the new limit suspend on their next failure.
func (u *Updater) SetRetryLimit(limit int) {
	u.mu.Lock()
	u.policy = RetryPolicy{Limit: limit}
	u.mu.Unlock()
}

// SetRotationPeriod adjusts the "next update expected" estimate in the
// rolling status message.
func (u *Updater) SetRotationPeriod(d time.Duration) {
	u.mu.Lock()
	u.period = d
	u.mu.Unlock()
}

func (u *Updater) tuning() (RetryPolicy, time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.policy, u.period
}

// Update runs one cycle. A non-nil error is an operator error (missing or
// corrupt checkpoint for a live entity, or a failed persist) and the
// caller should treat it as fatal; transient external failures are
// absorbed into the entity's failure counter instead.
func (u *Updater) Update(ctx context.Context, ent *Entity) (Outcome, error) {
	log := u.log.With().Int64("character_id", ent.CharacterID).Logger()
	log.Info().Msg("refreshing skills")

	cp, err := u.store.Read(ent.CharacterID)
	if err != nil {
		return OutcomeContinue, fmt.Errorf("checkpoint for live character %d: %w", ent.CharacterID, err)
	}

	access, newRefresh, err := u.source.Refresh(ctx, cp.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed")
		ent.Failures++
		return u.finish(ctx, ent, cp, log)
	}

	skills, serr := u.source.FetchSkills(ctx, access, cp.CharacterID)
	queue, qerr := u.source.FetchQueue(ctx, access, cp.CharacterID)
	if serr != nil || qerr != nil {
		if serr != nil {
			log.Warn().Err(serr).Msg("failed to fetch skills")
		} else {
			log.Warn().Err(qerr).Msg("failed to fetch skill queue")
		}
		// The rotated refresh token is deliberately not persisted here:
		// the cycle made no forward progress, and the stored token stays
		// valid until the rotated one is used.
		ent.Failures++
		return u.finish(ctx, ent, cp, log)
	}

	now := u.now()
	_, period := u.tuning()
	reconciled := Reconcile(skills, queue, now)

	summary := u.fmt.QueueSummary(ctx, queue, now, now.Add(period))
	if err := u.notif.ReplaceLast(cp.StatusTarget, summary); err != nil {
		log.Warn().Err(err).Msg("failed to update status message")
	}

	// Don't check for changes if this is the first poll ever; every skill
	// would report as new.
	if len(cp.Skills) > 0 {
		changes := DiffSkills(cp.Skills, reconciled)
		if len(changes) > 0 {
			if err := u.notif.Send(cp.ActivityTarget, u.fmt.ChangeReport(ctx, changes)); err != nil {
				log.Warn().Err(err).Msg("failed to send change report")
			}
			u.recordChanges(ctx, cp.CharacterID, changes, now)
		}
	}

	cp.Skills = reconciled
	cp.RefreshToken = newRefresh
	ent.Failures = 0
	return u.finish(ctx, ent, cp, log)
}

// finish applies the suspension policy and persists the checkpoint,
// whatever its final state, before returning.
func (u *Updater) finish(ctx context.Context, ent *Entity, cp *Checkpoint, log zerolog.Logger) (Outcome, error) {
	outcome := OutcomeContinue
	policy, _ := u.tuning()
	if policy.Exhausted(ent.Failures) && !cp.Suspended {
		log.Warn().Int("failures", ent.Failures).Msg("retry budget exhausted, suspending character")
		cp.Suspended = true
		outcome = OutcomeSuspend

		if err := u.notif.Send(cp.ActivityTarget, u.fmt.SuspensionAlert(cp.OwnerID, ent.Failures)); err != nil {
			log.Warn().Err(err).Msg("failed to send suspension alert")
		}
		u.record(ctx, history.Event{
			At:          u.now(),
			CharacterID: cp.CharacterID,
			Kind:        history.KindSuspended,
		})
	}

	if err := u.store.Write(ent.CharacterID, cp); err != nil {
		return outcome, fmt.Errorf("persist checkpoint for %d: %w", ent.CharacterID, err)
	}
	return outcome, nil
}

func (u *Updater) recordChanges(ctx context.Context, characterID int64, changes []Change, at time.Time) {
	for _, ch := range changes {
		kind := history.KindCompleted
		if ch.Kind == ChangeInjected {
			kind = history.KindInjected
		}
		name, err := u.source.SkillName(ctx, ch.SkillID)
		if err != nil {
			name = ""
		}
		u.record(ctx, history.Event{
			At:          at,
			CharacterID: characterID,
			Kind:        kind,
			SkillID:     ch.SkillID,
			SkillName:   name,
			Level:       ch.Level,
		})
	}
}

func (u *Updater) record(ctx context.Context, e history.Event) {
	if u.hist == nil {
		return
	}
	if err := u.hist.Append(ctx, e); err != nil {
		u.log.Warn().Err(err).Msg("failed to append history event")
	}
}
