// Package pipeline turns the raw inbound event stream into normalized
// messages for a single downstream sink. Profile events feed the
// profile cache, muted and spammy content is discarded, and everything
// that survives is enriched with a resolved author name.
package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nbd-wtf/go-nostr"

	"nostr-overlay/internal/profile"
)

// Message is the normalized unit handed to the sink. IsPost is true for
// text posts (kind 1) and false for channel messages (kind 42).
type Message struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	IsPost    bool   `json:"is_post"`
}

// Sink receives emitted messages, one call per message, in stream order.
type Sink func(Message)

// MuteChecker is the slice of the mute list the pipeline needs: a pure
// in-memory membership test, safe to call on every event.
type MuteChecker interface {
	IsMuted(pubkey string) bool
}

// verdict is the terminal outcome of one inbound event. Dropping is
// expected control flow here, not a fault; nothing in the pipeline
// propagates an error that could stop the stream.
type verdict int

const (
	verdictEmitted verdict = iota
	verdictIgnored         // not a content-bearing event
	verdictMuted
	verdictProfile // consumed as a profile update (or malformed kind 0)
	verdictSpam
	verdictNoSink
)

// Stats counts pipeline outcomes since startup.
type Stats struct {
	Seen     int64 `json:"seen"`
	Muted    int64 `json:"muted"`
	Profiles int64 `json:"profiles"`
	Spam     int64 `json:"spam"`
	Emitted  int64 `json:"emitted"`
}

// Pipeline consumes inbound events and emits Messages. One long-lived
// Run loop owns the receive side; SetSink may be called from any
// goroutine at any time.
type Pipeline struct {
	mutes    MuteChecker
	profiles *profile.Cache

	mu   sync.RWMutex
	sink Sink

	seen     atomic.Int64
	muted    atomic.Int64
	nProfile atomic.Int64
	spam     atomic.Int64
	emitted  atomic.Int64
}

// New returns a pipeline reading mute state from mutes and resolving
// author names through profiles. No sink is registered yet; messages
// emitted before SetSink are lost by design.
func New(mutes MuteChecker, profiles *profile.Cache) *Pipeline {
	return &Pipeline{mutes: mutes, profiles: profiles}
}

// SetSink registers the single downstream consumer, replacing any
// previous one. Nothing is buffered across the swap.
func (p *Pipeline) SetSink(sink Sink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Run drains events until the channel closes. It never returns early:
// every malformed or unwanted event is dropped and the loop continues.
func (p *Pipeline) Run(events <-chan *nostr.Event) {
	for ev := range events {
		p.process(ev)
	}
	slog.Info("event stream closed, pipeline exiting")
}

// Stats returns a snapshot of the outcome counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Seen:     p.seen.Load(),
		Muted:    p.muted.Load(),
		Profiles: p.nProfile.Load(),
		Spam:     p.spam.Load(),
		Emitted:  p.emitted.Load(),
	}
}

// process runs one event through admission, mute check, kind dispatch,
// spam check, enrichment, and emission. Terminal per event.
func (p *Pipeline) process(ev *nostr.Event) verdict {
	// Admission: only content-bearing kinds continue.
	if ev == nil {
		return verdictIgnored
	}
	switch ev.Kind {
	case nostr.KindProfileMetadata, nostr.KindTextNote, nostr.KindChannelMessage:
	default:
		return verdictIgnored
	}
	p.seen.Add(1)

	// Muted authors are suppressed entirely, profile updates included.
	if p.mutes.IsMuted(ev.PubKey) {
		p.muted.Add(1)
		return verdictMuted
	}

	// Profile updates feed the cache and never become visible messages.
	// Malformed metadata is not an error, just a dropped event, and it
	// does not count as an applied profile.
	if ev.Kind == nostr.KindProfileMetadata {
		if p.profiles.ApplyMetadata(ev.PubKey, ev.Content) {
			p.nProfile.Add(1)
		} else {
			slog.Debug("malformed profile metadata dropped", "id", ev.ID)
		}
		return verdictProfile
	}

	if IsSpam(ev.Content) {
		p.spam.Add(1)
		slog.Debug("spam dropped", "id", ev.ID, "pubkey", ev.PubKey)
		return verdictSpam
	}

	msg := Message{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		Author:    p.profiles.DisplayName(ev.PubKey),
		Content:   ev.Content,
		Timestamp: int64(ev.CreatedAt),
		IsPost:    ev.Kind == nostr.KindTextNote,
	}

	p.mu.RLock()
	sink := p.sink
	p.mu.RUnlock()

	// No sink registered is a valid state before a consumer attaches.
	if sink == nil {
		return verdictNoSink
	}
	sink(msg)
	p.emitted.Add(1)
	return verdictEmitted
}
