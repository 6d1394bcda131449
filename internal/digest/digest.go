// Package digest posts a daily training summary per monitored character,
// built from the history store.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"skillwatch/internal/history"
	"skillwatch/internal/monitor"
)

const lookback = 24 * time.Hour

// Service runs the digest on a cron schedule. It is inert when the
// schedule is empty or no history store is configured.
type Service struct {
	store *monitor.CheckpointStore
	hist  history.Store
	notif monitor.Notifier
	log   zerolog.Logger

	spec string
	cron *cron.Cron
	now  func() time.Time
}

func New(store *monitor.CheckpointStore, hist history.Store, notif monitor.Notifier, spec string, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		hist:  hist,
		notif: notif,
		log:   log,
		spec:  strings.TrimSpace(spec),
		now:   time.Now,
	}
}

// Start schedules the digest. Returns without starting anything when
// disabled.
func (s *Service) Start() error {
	if s.spec == "" || s.hist == nil {
		s.log.Debug().Msg("digest disabled")
		return nil
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("digest schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.spec).Msg("digest scheduled")
	return nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Service) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cps, err := s.store.All()
	if err != nil {
		s.log.Warn().Err(err).Msg("digest: failed to list checkpoints")
		return
	}

	since := s.now().Add(-lookback)
	for _, cp := range cps {
		if cp.Suspended {
			continue
		}
		events, err := s.hist.Since(ctx, cp.CharacterID, since)
		if err != nil {
			s.log.Warn().Int64("character_id", cp.CharacterID).Err(err).Msg("digest: history read failed")
			continue
		}
		text := Render(cp.CharacterName, events)
		if text == "" {
			continue
		}
		if err := s.notif.Send(cp.ActivityTarget, text); err != nil {
			s.log.Warn().Int64("character_id", cp.CharacterID).Err(err).Msg("digest: send failed")
		}
	}
}

// Render builds the digest text for one character. Returns "" when there
// is nothing to report.
func Render(characterName string, events []history.Event) string {
	var completed, injected int
	var lines []string
	for _, e := range events {
		name := monitor.EscapeHTML(e.SkillName)
		if name == "" {
			name = fmt.Sprintf("skill %d", e.SkillID)
		}
		switch e.Kind {
		case history.KindCompleted:
			completed++
			lines = append(lines, fmt.Sprintf("- <code>%s</code> reached level %d", name, e.Level))
		case history.KindInjected:
			injected++
			lines = append(lines, fmt.Sprintf("- <code>%s</code> injected", name))
		}
	}
	if completed == 0 && injected == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s: %d completed, %d injected.\n", monitor.EscapeHTML(characterName), completed, injected)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
