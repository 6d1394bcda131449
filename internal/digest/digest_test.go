package digest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"skillwatch/internal/history"
)

func TestRender(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []history.Event{
		{At: at, CharacterID: 1, Kind: history.KindCompleted, SkillID: 10, SkillName: "Gunnery", Level: 4},
		{At: at.Add(time.Hour), CharacterID: 1, Kind: history.KindInjected, SkillID: 11, SkillName: "Navigation"},
		{At: at.Add(2 * time.Hour), CharacterID: 1, Kind: history.KindSuspended},
	}

	got := Render("Test Pilot", events)

	if !strings.Contains(got, "Daily digest for Test Pilot: 1 completed, 1 injected.") {
		t.Errorf("digest missing header:\n%s", got)
	}
	if !strings.Contains(got, "<code>Gunnery</code> reached level 4") {
		t.Errorf("digest missing completion line:\n%s", got)
	}
	if !strings.Contains(got, "<code>Navigation</code> injected") {
		t.Errorf("digest missing injection line:\n%s", got)
	}
	// Suspension events are bookkeeping, not digest content.
	if strings.Contains(got, "suspended") {
		t.Errorf("digest mentions suspension:\n%s", got)
	}
}

func TestRenderNothingToReport(t *testing.T) {
	t.Parallel()

	if got := Render("Test Pilot", nil); got != "" {
		t.Errorf("Render(nil) = %q, want empty", got)
	}

	events := []history.Event{{Kind: history.KindSuspended}}
	if got := Render("Test Pilot", events); got != "" {
		t.Errorf("Render(suspension only) = %q, want empty", got)
	}
}

func TestRenderUnnamedSkill(t *testing.T) {
	t.Parallel()

	events := []history.Event{{Kind: history.KindCompleted, SkillID: 3300, Level: 2}}
	got := Render("Test Pilot", events)
	if !strings.Contains(got, "skill 3300") {
		t.Errorf("digest missing id fallback:\n%s", got)
	}
}

func TestRenderEscapesNames(t *testing.T) {
	t.Parallel()

	events := []history.Event{
		{Kind: history.KindCompleted, SkillID: 10, SkillName: "High <Speed> & Low Drag", Level: 1},
	}
	got := Render("Pilot <X>", events)

	if !strings.Contains(got, "Daily digest for Pilot &lt;X&gt;") {
		t.Errorf("digest does not escape the character name:\n%s", got)
	}
	if !strings.Contains(got, "High &lt;Speed&gt; &amp; Low Drag") {
		t.Errorf("digest does not escape the skill name:\n%s", got)
	}
}

func TestServiceStartDisabled(t *testing.T) {
	t.Parallel()

	// No schedule and no history store both disable the digest.
	s := New(nil, nil, nil, "", zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Errorf("Start with empty schedule: %v", err)
	}
	s.Stop()

	s = New(nil, nil, nil, "0 8 * * *", zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Errorf("Start without history store: %v", err)
	}
	s.Stop()
}

func TestServiceStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := New(nil, &fakeHistory{}, nil, "not a cron spec", zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Error("Start accepted an invalid schedule")
	}
}

type fakeHistory struct{}

func (fakeHistory) Append(ctx context.Context, e history.Event) error { return nil }
func (fakeHistory) Since(ctx context.Context, characterID int64, since time.Time) ([]history.Event, error) {
	return nil, nil
}
func (fakeHistory) Close() error { return nil }
