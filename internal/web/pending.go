package web

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"skillwatch/internal/telegram"
)

const (
	pendingTTL    = 5 * time.Minute
	sweepInterval = time.Minute

	timeoutText = "Authentication timed out. Use /monitor to try again."
)

// MessageEditor rewrites a previously sent chat message; implemented by
// the telegram bot.
type MessageEditor interface {
	Edit(ref telegram.MessageRef, text string) error
}

type pendingEntry struct {
	ownerID int64
	ref     *telegram.MessageRef
	expires time.Time
}

// PendingStore tracks in-flight authentication attempts keyed by a random
// state token. Entries expire after five minutes; the sweeper edits the
// original chat reply with a timeout notice.
type PendingStore struct {
	publicURL string
	editor    MessageEditor
	log       zerolog.Logger

	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func NewPendingStore(publicURL string, editor MessageEditor, log zerolog.Logger) *PendingStore {
	return &PendingStore{
		publicURL: strings.TrimRight(publicURL, "/"),
		editor:    editor,
		log:       log,
		entries:   make(map[string]*pendingEntry),
	}
}

// Begin issues a state token for a user and returns it with the login URL
// to visit.
func (p *PendingStore) Begin(ownerID int64) (state, loginURL string) {
	state = uuid.NewString()
	p.mu.Lock()
	p.entries[state] = &pendingEntry{ownerID: ownerID, expires: time.Now().Add(pendingTTL)}
	p.mu.Unlock()
	return state, fmt.Sprintf("%s/login?state=%s", p.publicURL, state)
}

// Attach ties the bot's reply message to the state so flow progress can
// be reported by editing it.
func (p *PendingStore) Attach(state string, ref telegram.MessageRef) {
	p.mu.Lock()
	if e, ok := p.entries[state]; ok {
		e.ref = &ref
	}
	p.mu.Unlock()
}

// Exists reports whether the state token is known and still within its
// TTL. Expiry is checked here, not only in the sweeper, so a stale token
// cannot be redeemed in the window before the next sweep.
func (p *PendingStore) Exists(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[state]
	return ok && e.expires.After(time.Now())
}

// Owner returns the user that started the flow, if the token is still
// valid.
func (p *PendingStore) Owner(state string) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[state]
	if !ok || !e.expires.After(time.Now()) {
		return 0, false
	}
	return e.ownerID, true
}

// Report edits the flow's chat reply with a progress update. Best effort;
// flows without an attached reply are skipped.
func (p *PendingStore) Report(state, text string) {
	p.mu.Lock()
	e, ok := p.entries[state]
	var ref *telegram.MessageRef
	if ok && e.ref != nil {
		r := *e.ref
		ref = &r
	}
	p.mu.Unlock()
	if ref == nil {
		return
	}
	if err := p.editor.Edit(*ref, text); err != nil {
		p.log.Warn().Err(err).Msg("failed to edit pending reply")
	}
}

func (p *PendingStore) Remove(state string) {
	p.mu.Lock()
	delete(p.entries, state)
	p.mu.Unlock()
}

// Sweep expires stale entries once a minute until ctx is done, notifying
// each owner through their original reply.
func (p *PendingStore) Sweep(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			p.expire(now)
		}
	}
}

func (p *PendingStore) expire(now time.Time) {
	var expired []*telegram.MessageRef
	p.mu.Lock()
	for state, e := range p.entries {
		if e.expires.After(now) {
			continue
		}
		if e.ref != nil {
			r := *e.ref
			expired = append(expired, &r)
		}
		delete(p.entries, state)
	}
	p.mu.Unlock()

	for _, ref := range expired {
		if err := p.editor.Edit(*ref, timeoutText); err != nil {
			p.log.Warn().Err(err).Msg("failed to edit timed-out reply")
		}
	}
}
