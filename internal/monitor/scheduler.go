package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRotationPeriod is the target time for one full pass over every
// monitored character.
const DefaultRotationPeriod = 30 * time.Minute

// entityUpdater is what the scheduler drives each tick.
type entityUpdater interface {
	Update(ctx context.Context, ent *Entity) (Outcome, error)
}

// Scheduler owns the live registry of monitored characters and walks it
// round-robin, one character per tick, spacing ticks so a full rotation
// takes close to the configured period regardless of registry size or
// per-character latency. Processing is strictly sequential: the upstream
// API is rate-limit sensitive and sequential updates keep the retry
// accounting trivial.
type Scheduler struct {
	updater entityUpdater
	clock   Clock
	log     zerolog.Logger

	mu       sync.Mutex
	entities []*Entity
	cursor   int
	period   time.Duration
}

func NewScheduler(updater entityUpdater, period time.Duration, log zerolog.Logger) *Scheduler {
	if period <= 0 {
		period = DefaultRotationPeriod
	}
	return &Scheduler{
		updater: updater,
		clock:   realClock{},
		log:     log,
		period:  period,
	}
}

// SetClock replaces the wall clock; call before Run. Tests use this to
// drive the loop without real timers.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// SetPeriod re-applies the rotation period, used by config hot reload.
func (s *Scheduler) SetPeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.period = d
	s.mu.Unlock()
}

// Add appends a character to the tail of the rotation. Safe to call while
// Run is ticking; the cadence rebalances on the next tick.
func (s *Scheduler) Add(ent *Entity) {
	s.mu.Lock()
	s.entities = append(s.entities, ent)
	s.mu.Unlock()
}

// Contains reports whether a character is in the live registry.
func (s *Scheduler) Contains(characterID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.CharacterID == characterID {
			return true
		}
	}
	return false
}

// Len returns the registry size.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// Run drives the loop until ctx is done. A non-nil return is an operator
// error surfaced by the updater; per-character transient failures never
// reach here.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Msg("starting skill monitor loop")
	for ctx.Err() == nil {
		if err := s.tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// tick processes at most one character, then sleeps the remainder of its
// slot: period divided by the registry size, minus the time the update
// took, clamped at zero.
func (s *Scheduler) tick(ctx context.Context) error {
	start := s.clock.Now()

	ent := s.next()
	if ent == nil {
		s.clock.Sleep(ctx, s.currentPeriod())
		return nil
	}

	outcome, err := s.updater.Update(ctx, ent)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if outcome == OutcomeSuspend {
		s.removeLocked(ent)
	} else {
		if n := len(s.entities); n > 0 {
			s.cursor = (s.cursor + 1) % n
		}
	}
	n := len(s.entities)
	period := s.period
	s.mu.Unlock()

	if n < 1 {
		n = 1
	}
	slot := period / time.Duration(n)
	elapsed := s.clock.Now().Sub(start)
	s.clock.Sleep(ctx, slot-elapsed)
	return nil
}

// next selects the entity under the cursor. The lock is held only for the
// selection, never across the update's network calls.
func (s *Scheduler) next() *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entities) == 0 {
		return nil
	}
	if s.cursor >= len(s.entities) {
		s.cursor = 0
	}
	return s.entities[s.cursor]
}

func (s *Scheduler) removeLocked(ent *Entity) {
	for i, e := range s.entities {
		if e == ent {
			s.entities = append(s.entities[:i], s.entities[i+1:]...)
			break
		}
	}
	if s.cursor >= len(s.entities) {
		s.cursor = 0
	}
}

func (s *Scheduler) currentPeriod() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}
