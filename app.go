package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"nostr-overlay/internal/history"
	"nostr-overlay/internal/identity"
	"nostr-overlay/internal/mutelist"
	"nostr-overlay/internal/pipeline"
	"nostr-overlay/internal/profile"
	"nostr-overlay/internal/relaypool"
	"nostr-overlay/internal/relays"
	"nostr-overlay/internal/sender"
	"nostr-overlay/internal/store"
)

// subscribeBacklog bounds the initial backlog requested from each relay
// when the live subscription opens.
const subscribeBacklog = 100

// App wires the components together and owns the connection lifecycle.
// Every command the front end can issue maps onto one method here.
type App struct {
	keys     *identity.KeyStore
	relays   *relays.Manager
	mutes    *mutelist.Manager
	profiles *profile.Cache
	pipe     *pipeline.Pipeline
	pool     *relaypool.Pool
	sender   *sender.Sender
	messages *history.Buffer
	stream   *MessageBroadcaster

	mu      sync.Mutex
	started bool
}

// NewApp builds an app over the given blob store. Nothing touches the
// network until Connect.
func NewApp(blobs store.Store) *App {
	keys := identity.NewKeyStore(blobs)
	mutes := mutelist.NewManager(blobs)
	profiles := profile.NewCache()
	pool := relaypool.New()

	relayList := relays.NewManager(blobs)
	relayList.SetConn(pool)

	app := &App{
		keys:     keys,
		relays:   relayList,
		mutes:    mutes,
		profiles: profiles,
		pipe:     pipeline.New(mutes, profiles),
		pool:     pool,
		sender:   sender.New(keys, pool),
		messages: history.NewBuffer(history.DefaultMaxMessages),
		stream:   NewMessageBroadcaster(),
	}

	// One sink fans emitted messages into the backlog buffer and out to
	// any attached stream clients. Registered up front so nothing is
	// missed between Connect and the first front-end attach.
	app.pipe.SetSink(func(msg pipeline.Message) {
		app.messages.Add(msg)
		app.stream.Broadcast(msg)
	})

	return app
}

// Connect loads or generates the identity, connects to the configured
// relays, opens the live subscription, and starts the pipeline. It is
// idempotent; repeat calls return the current public key.
func (a *App) Connect(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return a.keys.PublicKey()
	}

	if _, err := a.keys.LoadOrGenerate(); err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	}

	if err := a.pool.Connect(ctx, a.relays.List()); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}

	events, err := a.pool.Subscribe(nostr.Filters{{
		Kinds: []int{nostr.KindProfileMetadata, nostr.KindTextNote, nostr.KindChannelMessage},
		Limit: subscribeBacklog,
	}})
	if err != nil {
		return "", fmt.Errorf("subscribe: %w", err)
	}

	go a.pipe.Run(events)
	a.started = true
	slog.Info("connected and listening", "relays", len(a.relays.List()))

	return a.keys.PublicKey()
}

// Close tears down the relay connections; the pipeline exits once it
// observes the merged stream closing.
func (a *App) Close() {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	if started {
		a.pool.Close()
	}
}

// OwnProfile returns the cached profile for the local identity, if the
// stream has delivered one this session.
func (a *App) OwnProfile() (profile.Profile, error) {
	pubkey, err := a.keys.PublicKeyHex()
	if err != nil {
		return profile.Profile{}, err
	}
	p, _ := a.profiles.Get(pubkey)
	return p, nil
}
