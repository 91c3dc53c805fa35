// Package relaypool manages the live connections to the configured
// relays and merges their subscription streams into a single event
// channel. It is the only package that talks to the protocol client
// library directly; everything above it sees a narrow surface:
// connect, add/remove relay, subscribe, publish, and one event stream.
package relaypool

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// ErrNotConnected is returned by operations that need at least one live
// relay before Connect has succeeded.
var ErrNotConnected = errors.New("not connected to any relay")

// eventBuffer bounds the merged stream. When the consumer falls this far
// behind, newer events are dropped rather than blocking relay reads.
const eventBuffer = 256

// seenResetThreshold caps the duplicate-suppression set. The set is
// cleared wholesale once it grows past this; a brief window of possible
// duplicates is cheaper than unbounded growth in a long-lived client.
const seenResetThreshold = 1 << 16

// Pool is a set of relay connections sharing one subscription.
type Pool struct {
	mu      sync.RWMutex
	relays  map[string]*nostr.Relay
	subs    map[string]*nostr.Subscription
	filters nostr.Filters // non-nil once Subscribe has been called
	events  chan *nostr.Event
	open    bool

	seen     *xsync.MapOf[string, struct{}]
	seenSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a pool with no connections. Connect establishes them.
func New() *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		relays: make(map[string]*nostr.Relay),
		subs:   make(map[string]*nostr.Subscription),
		events: make(chan *nostr.Event, eventBuffer),
		seen:   xsync.NewMapOf[string, struct{}](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect dials every url. Individual relays failing is tolerated and
// logged; Connect fails only when no relay at all could be reached.
func (p *Pool) Connect(ctx context.Context, urls []string) error {
	var g errgroup.Group
	for _, url := range urls {
		url := url
		g.Go(func() error {
			if err := p.AddRelay(ctx, url); err != nil {
				slog.Warn("relay unreachable", "url", url, "err", err)
			}
			return nil
		})
	}
	g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.relays) == 0 {
		return errors.New("no relay could be reached")
	}
	p.open = true
	return nil
}

// Connected reports whether Connect has succeeded and the pool is still
// open.
func (p *Pool) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.open
}

// AddRelay dials url and adds it to the pool. If a subscription is
// already active the new relay joins it immediately. Adding a relay
// that is already in the pool is a no-op.
func (p *Pool) AddRelay(ctx context.Context, url string) error {
	p.mu.RLock()
	_, exists := p.relays[url]
	p.mu.RUnlock()
	if exists {
		return nil
	}

	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if _, exists := p.relays[url]; exists {
		p.mu.Unlock()
		relay.Close()
		return nil
	}
	p.relays[url] = relay
	filters := p.filters
	p.mu.Unlock()

	slog.Info("relay connected", "url", url)

	if filters != nil {
		if err := p.subscribeRelay(url, relay, filters); err != nil {
			slog.Warn("relay subscribe failed", "url", url, "err", err)
		}
	}
	return nil
}

// RemoveRelay closes the connection to url and detaches it from the
// active subscription. Removing an unknown url is a no-op.
func (p *Pool) RemoveRelay(url string) error {
	p.mu.Lock()
	relay := p.relays[url]
	sub := p.subs[url]
	delete(p.relays, url)
	delete(p.subs, url)
	p.mu.Unlock()

	if sub != nil {
		sub.Unsub()
	}
	if relay != nil {
		relay.Close()
		slog.Info("relay disconnected", "url", url)
	}
	return nil
}

// Subscribe opens the given filters on every connected relay and returns
// the merged event stream. Subscriptions live for the pool's lifetime,
// not the caller's: the channel closes when the pool closes, and
// per-relay disconnects only thin the stream. Only one subscription is
// supported; calling Subscribe again replaces the filters for relays
// added later but does not reopen existing ones.
func (p *Pool) Subscribe(filters nostr.Filters) (<-chan *nostr.Event, error) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil, ErrNotConnected
	}
	p.filters = filters
	relays := make(map[string]*nostr.Relay, len(p.relays))
	for url, r := range p.relays {
		relays[url] = r
	}
	p.mu.Unlock()

	for url, relay := range relays {
		if err := p.subscribeRelay(url, relay, filters); err != nil {
			slog.Warn("relay subscribe failed", "url", url, "err", err)
		}
	}
	return p.events, nil
}

// Publish sends the event to every connected relay concurrently. It
// succeeds when at least one relay accepted the event.
func (p *Pool) Publish(ctx context.Context, ev nostr.Event) error {
	p.mu.RLock()
	if !p.open {
		p.mu.RUnlock()
		return ErrNotConnected
	}
	relays := make([]*nostr.Relay, 0, len(p.relays))
	for _, r := range p.relays {
		relays = append(relays, r)
	}
	p.mu.RUnlock()

	if len(relays) == 0 {
		return ErrNotConnected
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		accepted int
		lastErr  error
	)
	for _, relay := range relays {
		relay := relay
		g.Go(func() error {
			err := relay.Publish(ctx, ev)
			mu.Lock()
			if err != nil {
				lastErr = err
			} else {
				accepted++
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if accepted == 0 {
		return errors.New("publish rejected by all relays: " + lastErr.Error())
	}
	return nil
}

// Close tears down every connection and closes the merged event stream,
// which is how the consuming pipeline observes shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.open && p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.open = false
	relays := p.relays
	p.relays = make(map[string]*nostr.Relay)
	p.subs = make(map[string]*nostr.Subscription)
	p.mu.Unlock()

	p.cancel()
	for url, relay := range relays {
		relay.Close()
		slog.Debug("relay closed", "url", url)
	}
	p.wg.Wait()
	close(p.events)
}

// subscribeRelay opens the subscription on p.ctx, never a caller's
// context. The client library unsubscribes and closes sub.Events as
// soon as the subscription context is done, so a request-scoped
// context here would kill the stream the moment the request returned.
func (p *Pool) subscribeRelay(url string, relay *nostr.Relay, filters nostr.Filters) error {
	sub, err := relay.Subscribe(p.ctx, filters)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.subs[url] = sub
	p.mu.Unlock()

	p.wg.Add(1)
	go p.forward(url, sub)
	return nil
}

// forward copies one relay's events into the merged stream, suppressing
// ids already delivered by another relay.
func (p *Pool) forward(url string, sub *nostr.Subscription) {
	defer p.wg.Done()
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				slog.Debug("relay stream ended", "url", url)
				return
			}
			if ev == nil || p.alreadySeen(ev.ID) {
				continue
			}
			select {
			case p.events <- ev:
			case <-p.ctx.Done():
				return
			default:
				// Consumer is behind; drop rather than stall the read loop.
				slog.Debug("event dropped, stream backlogged", "id", ev.ID)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) alreadySeen(id string) bool {
	if _, dup := p.seen.LoadOrStore(id, struct{}{}); dup {
		return true
	}
	p.mu.Lock()
	p.seenSize++
	if p.seenSize > seenResetThreshold {
		p.seen.Clear()
		p.seenSize = 0
	}
	p.mu.Unlock()
	return false
}
