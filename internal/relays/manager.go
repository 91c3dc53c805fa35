// Package relays maintains the ordered set of relay endpoints the
// client uses, persists it, and propagates changes to the live
// connection when one exists.
package relays

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"nostr-overlay/internal/store"
)

// ErrInvalidURL marks relay urls rejected by validation, as opposed to
// failures persisting an accepted url.
var ErrInvalidURL = errors.New("invalid relay url")

// relaysFile is the blob name for the persisted relay list.
const relaysFile = "relays.json"

// DefaultRelays seeds the list on first run: well-known public relays
// that accept reads and writes without registration.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
	"wss://nostr.wine",
	"wss://relay-jp.nostr.wirednet.jp",
	"wss://nostr.holybea.com",
}

// Conn is the slice of the live connection the manager drives: attach
// and detach relays on an already-running pool.
type Conn interface {
	Connected() bool
	AddRelay(ctx context.Context, url string) error
	RemoveRelay(url string) error
}

// Manager holds the relay list. Mutations persist the whole list before
// touching the live connection; reaching the relay itself is best
// effort, only a persistence failure fails the call.
type Manager struct {
	mu    sync.RWMutex
	urls  []string
	blobs store.Store
	conn  Conn // nil until a connection is attached
}

// NewManager loads the persisted relay list, seeding the defaults when
// none exists yet. A list that fails to parse also falls back to the
// defaults: losing relay preferences is recoverable, unlike key loss.
func NewManager(blobs store.Store) *Manager {
	m := &Manager{blobs: blobs}

	data, err := blobs.Load(relaysFile)
	if err != nil || data == nil {
		if err != nil {
			slog.Warn("relay list unreadable, using defaults", "err", err)
		}
		m.urls = append([]string(nil), DefaultRelays...)
		return m
	}

	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil || len(urls) == 0 {
		slog.Warn("relay list corrupt or empty, using defaults")
		m.urls = append([]string(nil), DefaultRelays...)
		return m
	}
	m.urls = urls
	return m
}

// SetConn attaches the live connection mutations should propagate to.
func (m *Manager) SetConn(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// Add appends rawURL to the list if absent, persists, and attaches it to
// the live connection when one exists. A duplicate is silently ignored.
// Failure to reach the relay is not an error; persistence failure is.
func (m *Manager) Add(ctx context.Context, rawURL string) error {
	if err := validateRelayURL(rawURL); err != nil {
		return err
	}

	m.mu.Lock()
	for _, existing := range m.urls {
		if existing == rawURL {
			m.mu.Unlock()
			return nil
		}
	}
	m.urls = append(m.urls, rawURL)
	snapshot := append([]string(nil), m.urls...)
	conn := m.conn
	m.mu.Unlock()

	if err := m.persist(snapshot); err != nil {
		return err
	}

	if conn != nil && conn.Connected() {
		if err := conn.AddRelay(ctx, rawURL); err != nil {
			slog.Warn("relay added to list but unreachable", "url", rawURL, "err", err)
		}
	}
	slog.Info("relay added", "url", rawURL)
	return nil
}

// Remove deletes rawURL from the list if present, persists, and detaches
// it from the live connection. Removing an unknown url is a no-op.
func (m *Manager) Remove(rawURL string) error {
	m.mu.Lock()
	kept := m.urls[:0]
	found := false
	for _, existing := range m.urls {
		if existing == rawURL {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	m.urls = kept
	snapshot := append([]string(nil), m.urls...)
	conn := m.conn
	m.mu.Unlock()

	if !found {
		return nil
	}
	if err := m.persist(snapshot); err != nil {
		return err
	}

	if conn != nil && conn.Connected() {
		if err := conn.RemoveRelay(rawURL); err != nil {
			slog.Warn("relay detach failed", "url", rawURL, "err", err)
		}
	}
	slog.Info("relay removed", "url", rawURL)
	return nil
}

// List returns a snapshot of the relay list in insertion order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.urls...)
}

func (m *Manager) persist(urls []string) error {
	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("encode relay list: %w", err)
	}
	if err := m.blobs.Save(relaysFile, data); err != nil {
		return fmt.Errorf("save relay list: %w", err)
	}
	return nil
}

func validateRelayURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("%w %q: scheme must be ws or wss", ErrInvalidURL, rawURL)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w %q: missing host", ErrInvalidURL, rawURL)
	}
	return nil
}
