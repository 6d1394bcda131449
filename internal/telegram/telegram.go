// Package telegram wires the bot to Telegram: message delivery, forum
// topic provisioning, and the /monitor command that starts the OAuth
// onboarding flow.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"skillwatch/internal/monitor"
)

type Config struct {
	Token string
	// GuildChatID is the forum supergroup that holds per-character topics.
	GuildChatID int64
	PollTimeout time.Duration
}

// MessageRef addresses a previously sent message so it can be edited
// later (the onboarding flow edits its own reply as the flow progresses).
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MonitorFlow is implemented by the pending-auth store. Begin issues a
// state token and login URL for a user; Attach ties the bot's reply to
// the state so later progress can be reported by editing it.
type MonitorFlow interface {
	Begin(ownerID int64) (state, loginURL string)
	Attach(state string, ref MessageRef)
}

// Bot implements monitor.Notifier and monitor.ChannelProvisioner over
// telebot, and owns the /monitor command handler.
type Bot struct {
	cfg Config
	bot *tele.Bot
	log zerolog.Logger

	flowMu sync.Mutex
	flow   MonitorFlow

	// lastMsg remembers the id of the most recent message per target so
	// ReplaceLast can edit in place. Bots cannot read chat history, so
	// after a restart the first ReplaceLast falls back to a fresh send.
	lastMu  sync.Mutex
	lastMsg map[monitor.Target]int
}

func New(cfg Config, log zerolog.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	bot := &Bot{
		cfg:     cfg,
		bot:     b,
		log:     log,
		lastMsg: make(map[monitor.Target]int),
	}
	bot.registerHandlers()
	return bot, nil
}

// SetMonitorFlow installs the onboarding flow; must be called before
// Start.
func (b *Bot) SetMonitorFlow(flow MonitorFlow) {
	b.flowMu.Lock()
	b.flow = flow
	b.flowMu.Unlock()
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/monitor", func(c tele.Context) error {
		b.flowMu.Lock()
		flow := b.flow
		b.flowMu.Unlock()
		if flow == nil || c.Sender() == nil {
			return nil
		}

		state, loginURL := flow.Begin(c.Sender().ID)
		text := fmt.Sprintf("Visit %s to authenticate an EVE Online character to monitor.", loginURL)
		m, err := b.bot.Reply(c.Message(), text)
		if err != nil {
			b.log.Warn().Err(err).Msg("failed to reply to /monitor")
			return err
		}
		flow.Attach(state, MessageRef{ChatID: m.Chat.ID, MessageID: m.ID})
		return nil
	})
}

// Start begins long polling and blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.log.Info().Msg("polling started")
	b.bot.Start()
	b.log.Info().Msg("polling stopped")
}

func (b *Bot) sendOpts(t monitor.Target) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ThreadID:              t.ThreadID,
		DisableWebPagePreview: true,
	}
}

// Send posts text to a target and remembers the message id for
// ReplaceLast.
func (b *Bot) Send(t monitor.Target, text string) error {
	m, err := b.bot.Send(&tele.Chat{ID: t.ChatID}, text, b.sendOpts(t))
	if err != nil {
		return err
	}
	b.lastMu.Lock()
	b.lastMsg[t] = m.ID
	b.lastMu.Unlock()
	return nil
}

// ReplaceLast edits the most recent message the bot sent to the target,
// so the target holds one rolling status message. Falls back to a fresh
// send when there is nothing to edit.
func (b *Bot) ReplaceLast(t monitor.Target, text string) error {
	b.lastMu.Lock()
	id, ok := b.lastMsg[t]
	b.lastMu.Unlock()
	if !ok {
		return b.Send(t, text)
	}

	msg := &tele.Message{ID: id, Chat: &tele.Chat{ID: t.ChatID}}
	_, err := b.bot.Edit(msg, text, b.sendOpts(t))
	if err == nil || errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	// The message may have been deleted by an admin; send a new one.
	b.log.Debug().Err(err).Int64("chat_id", t.ChatID).Msg("edit failed, sending fresh message")
	return b.Send(t, text)
}

// Edit rewrites an arbitrary previously sent message (onboarding flow
// progress updates).
func (b *Bot) Edit(ref MessageRef, text string) error {
	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := b.bot.Edit(msg, text, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return err
}

// CreatePrivateChannel provisions a character's notification targets: two
// forum topics in the configured supergroup, one for the rolling status
// message and one for the activity feed.
func (b *Bot) CreatePrivateChannel(ctx context.Context, ownerID int64, displayName string) (status, activity monitor.Target, err error) {
	_ = ctx
	chat := &tele.Chat{ID: b.cfg.GuildChatID}

	statusTopic, err := b.bot.CreateTopic(chat, &tele.Topic{Name: displayName})
	if err != nil {
		return monitor.Target{}, monitor.Target{}, fmt.Errorf("create status topic: %w", err)
	}
	activityTopic, err := b.bot.CreateTopic(chat, &tele.Topic{Name: displayName + " activity"})
	if err != nil {
		return monitor.Target{}, monitor.Target{}, fmt.Errorf("create activity topic: %w", err)
	}

	status = monitor.Target{ChatID: b.cfg.GuildChatID, ThreadID: statusTopic.ThreadID}
	activity = monitor.Target{ChatID: b.cfg.GuildChatID, ThreadID: activityTopic.ThreadID}

	intro := fmt.Sprintf(`<a href="tg://user?id=%d">Welcome</a>: here I will let you know when a skill training finished.`, ownerID)
	if err := b.Send(activity, intro); err != nil {
		b.log.Warn().Err(err).Str("name", displayName).Msg("failed to send activity intro")
	}
	return status, activity, nil
}
