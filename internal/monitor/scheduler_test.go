package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances only when told to; Sleep records its argument instead
// of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
}

func (c *fakeClock) lastSleep(t *testing.T) time.Duration {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sleeps) == 0 {
		t.Fatal("no sleep recorded")
	}
	return c.sleeps[len(c.sleeps)-1]
}

// scriptedUpdater records update order and delegates the outcome decision.
type scriptedUpdater struct {
	mu      sync.Mutex
	order   []int64
	outcome func(ent *Entity) (Outcome, error)
}

func (s *scriptedUpdater) Update(ctx context.Context, ent *Entity) (Outcome, error) {
	s.mu.Lock()
	s.order = append(s.order, ent.CharacterID)
	s.mu.Unlock()
	if s.outcome == nil {
		return OutcomeContinue, nil
	}
	return s.outcome(ent)
}

func TestSchedulerRoundRobin(t *testing.T) {
	t.Parallel()

	up := &scriptedUpdater{}
	clock := newFakeClock()
	s := NewScheduler(up, 30*time.Minute, zerolog.Nop())
	s.SetClock(clock)
	for _, id := range []int64{1, 2, 3} {
		s.Add(&Entity{CharacterID: id})
	}

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if err := s.tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	want := []int64{1, 2, 3, 1, 2, 3}
	for i, id := range want {
		if up.order[i] != id {
			t.Fatalf("update order = %v, want %v", up.order, want)
		}
	}
}

func TestSchedulerTickSpacing(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	// The update itself takes 2 minutes of fake time.
	up := &scriptedUpdater{outcome: func(*Entity) (Outcome, error) {
		clock.Advance(2 * time.Minute)
		return OutcomeContinue, nil
	}}
	s := NewScheduler(up, 30*time.Minute, zerolog.Nop())
	s.SetClock(clock)
	for _, id := range []int64{1, 2, 3} {
		s.Add(&Entity{CharacterID: id})
	}

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Slot is 30m / 3 = 10m; the update consumed 2m of it.
	if got, want := clock.lastSleep(t), 8*time.Minute; got != want {
		t.Errorf("sleep = %v, want %v", got, want)
	}
}

func TestSchedulerSlowUpdateClampsSleep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	up := &scriptedUpdater{outcome: func(*Entity) (Outcome, error) {
		clock.Advance(45 * time.Minute)
		return OutcomeContinue, nil
	}}
	s := NewScheduler(up, 30*time.Minute, zerolog.Nop())
	s.SetClock(clock)
	s.Add(&Entity{CharacterID: 1})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := clock.lastSleep(t); got > 0 {
		t.Errorf("sleep = %v, want <= 0 after a slow update", got)
	}
}

func TestSchedulerEmptyRegistryWaitsFullPeriod(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewScheduler(&scriptedUpdater{}, 30*time.Minute, zerolog.Nop())
	s.SetClock(clock)

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got, want := clock.lastSleep(t), 30*time.Minute; got != want {
		t.Errorf("sleep = %v, want %v", got, want)
	}
}

func TestSchedulerRemovesSuspendedEntity(t *testing.T) {
	t.Parallel()

	up := &scriptedUpdater{outcome: func(ent *Entity) (Outcome, error) {
		if ent.CharacterID == 2 {
			return OutcomeSuspend, nil
		}
		return OutcomeContinue, nil
	}}
	clock := newFakeClock()
	s := NewScheduler(up, 30*time.Minute, zerolog.Nop())
	s.SetClock(clock)
	for _, id := range []int64{1, 2, 3} {
		s.Add(&Entity{CharacterID: id})
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if s.Contains(2) {
		t.Error("suspended character still in registry")
	}
	if got, want := s.Len(), 2; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	// After removing 2 the rotation continues with the remaining pair.
	want := []int64{1, 2, 3, 1, 3}
	for i, id := range want {
		if up.order[i] != id {
			t.Fatalf("update order = %v, want %v", up.order, want)
		}
	}
}

func TestSchedulerRemovingLastEntityResetsCursor(t *testing.T) {
	t.Parallel()

	up := &scriptedUpdater{outcome: func(ent *Entity) (Outcome, error) {
		if ent.CharacterID == 2 {
			return OutcomeSuspend, nil
		}
		return OutcomeContinue, nil
	}}
	clock := newFakeClock()
	s := NewScheduler(up, 30*time.Minute, zerolog.Nop())
	s.SetClock(clock)
	s.Add(&Entity{CharacterID: 1})
	s.Add(&Entity{CharacterID: 2})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := s.tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	want := []int64{1, 2, 1, 1}
	for i, id := range want {
		if up.order[i] != id {
			t.Fatalf("update order = %v, want %v", up.order, want)
		}
	}
}

func TestSchedulerRunStopsOnUpdaterError(t *testing.T) {
	t.Parallel()

	boom := errors.New("checkpoint store broken")
	up := &scriptedUpdater{outcome: func(*Entity) (Outcome, error) {
		return OutcomeContinue, boom
	}}
	clock := newFakeClock()
	s := NewScheduler(up, time.Minute, zerolog.Nop())
	s.SetClock(clock)
	s.Add(&Entity{CharacterID: 1})

	if err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run: err = %v, want %v", err, boom)
	}
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	up := &scriptedUpdater{outcome: func(*Entity) (Outcome, error) {
		cancel()
		return OutcomeContinue, nil
	}}
	clock := newFakeClock()
	s := NewScheduler(up, time.Minute, zerolog.Nop())
	s.SetClock(clock)
	s.Add(&Entity{CharacterID: 1})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
