package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// queueSummaryItems caps how many queue entries the rolling status message
// lists before collapsing the rest into an overflow line.
const queueSummaryItems = 5

var romanLevels = [...]string{1: "I", 2: "II", 3: "III", 4: "IV", 5: "V"}

// romanLevel renders a trained level 1..5 the way the game client does.
func romanLevel(level int) string {
	if level >= 1 && level < len(romanLevels) {
		return romanLevels[level]
	}
	return fmt.Sprintf("%d", level)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes externally supplied text (skill and character names)
// for inclusion in Telegram HTML messages.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }

// Formatter renders notification text (Telegram HTML). Skill names come
// from the progress source; a failed lookup degrades to "Unknown" rather
// than failing the notification.
type Formatter struct {
	source ProgressSource
	log    zerolog.Logger
}

func NewFormatter(source ProgressSource, log zerolog.Logger) *Formatter {
	return &Formatter{source: source, log: log}
}

func (f *Formatter) skillName(ctx context.Context, skillID int32) string {
	name, err := f.source.SkillName(ctx, skillID)
	if err != nil {
		f.log.Warn().Int32("skill_id", skillID).Err(err).Msg("skill name lookup failed")
		return "Unknown"
	}
	return name
}

// QueueSummary renders the rolling status message: the next few queue
// entries, when the queue drains, and when the next poll is expected.
func (f *Formatter) QueueSummary(ctx context.Context, queue []QueueItem, now, nextUpdate time.Time) string {
	var b strings.Builder
	for i, item := range queue {
		if i >= queueSummaryItems {
			fmt.Fprintf(&b, "... and %d more.\n", len(queue)-queueSummaryItems)
			break
		}
		name := htmlEscaper.Replace(f.skillName(ctx, item.SkillID))
		fmt.Fprintf(&b, "- <code>%s %s</code> will finish training %s.\n",
			name, romanLevel(item.FinishedLevel), finishPhrase(item.FinishDate, now))
	}

	queueEnd := "never"
	if len(queue) > 0 {
		queueEnd = finishPhrase(queue[len(queue)-1].FinishDate, now)
	}
	fmt.Fprintf(&b, "\nSkill queue will finish %s.\n", queueEnd)
	fmt.Fprintf(&b, "\nNext update expected %s.\n", relativeTime(nextUpdate.Sub(now)))
	return b.String()
}

// ChangeReport renders detected changes, one line per change, in input
// order.
func (f *Formatter) ChangeReport(ctx context.Context, changes []Change) string {
	var b strings.Builder
	for _, ch := range changes {
		name := htmlEscaper.Replace(f.skillName(ctx, ch.SkillID))
		switch ch.Kind {
		case ChangeInjected:
			fmt.Fprintf(&b, "<code>%s</code> has been injected.\n", name)
		default:
			fmt.Fprintf(&b, "<code>%s %s</code> has finished training.\n", name, romanLevel(ch.Level))
		}
	}
	return b.String()
}

// SuspensionAlert tells the owner their character stopped being monitored
// and how to get it back.
func (f *Formatter) SuspensionAlert(ownerID int64, failures int) string {
	return fmt.Sprintf(
		`<a href="tg://user?id=%d">Heads up</a>: failed to retrieve character information %d times in a row. `+
			"Please re-authenticate with /monitor to continue monitoring. Monitoring suspended.",
		ownerID, failures)
}

func finishPhrase(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return relativeTime(t.Sub(now))
}

// relativeTime renders a duration as a compact human phrase. Telegram has
// no equivalent of Discord's client-side relative timestamps, so the text
// is fixed at render time.
func relativeTime(d time.Duration) string {
	if d < 0 {
		return "moments ago"
	}
	if d < time.Minute {
		return "in under a minute"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("in %dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("in %dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("in %dm", minutes)
	}
}
