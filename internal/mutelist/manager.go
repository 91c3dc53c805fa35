// Package mutelist maintains the set of muted author pubkeys. Muting is
// local-only suppression: it affects what this client displays, never
// the network.
package mutelist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"nostr-overlay/internal/store"
)

// mutedFile is the blob name for the persisted mute set.
const mutedFile = "muted.json"

// Manager holds the mute set. IsMuted is called on the hot path of
// every inbound event and never touches I/O; Mute and Unmute persist
// synchronously but outside the lock.
type Manager struct {
	mu    sync.RWMutex
	set   map[string]struct{}
	blobs store.Store
}

// NewManager loads the persisted mute set. An unreadable or corrupt
// blob starts empty: an empty mute list is safe, merely noisy.
func NewManager(blobs store.Store) *Manager {
	m := &Manager{set: make(map[string]struct{}), blobs: blobs}

	data, err := blobs.Load(mutedFile)
	if err != nil {
		slog.Warn("mute list unreadable, starting empty", "err", err)
		return m
	}
	if data == nil {
		return m
	}

	var pubkeys []string
	if err := json.Unmarshal(data, &pubkeys); err != nil {
		slog.Warn("mute list corrupt, starting empty")
		return m
	}
	for _, pk := range pubkeys {
		m.set[pk] = struct{}{}
	}
	return m
}

// Mute adds pubkey to the set and persists. Muting an already muted
// author is a no-op.
func (m *Manager) Mute(pubkey string) error {
	m.mu.Lock()
	if _, ok := m.set[pubkey]; ok {
		m.mu.Unlock()
		return nil
	}
	m.set[pubkey] = struct{}{}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.persist(snapshot); err != nil {
		return err
	}
	slog.Info("author muted", "pubkey", pubkey)
	return nil
}

// Unmute removes pubkey from the set and persists. Unmuting a
// non-member is a no-op.
func (m *Manager) Unmute(pubkey string) error {
	m.mu.Lock()
	if _, ok := m.set[pubkey]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.set, pubkey)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.persist(snapshot); err != nil {
		return err
	}
	slog.Info("author unmuted", "pubkey", pubkey)
	return nil
}

// IsMuted reports set membership. Pure in-memory check.
func (m *Manager) IsMuted(pubkey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[pubkey]
	return ok
}

// List returns the muted pubkeys, sorted for display stability.
func (m *Manager) List() []string {
	m.mu.RLock()
	snapshot := m.snapshotLocked()
	m.mu.RUnlock()
	return snapshot
}

// snapshotLocked copies the set into a sorted slice. Caller holds mu.
func (m *Manager) snapshotLocked() []string {
	out := make([]string, 0, len(m.set))
	for pk := range m.set {
		out = append(out, pk)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) persist(pubkeys []string) error {
	data, err := json.MarshalIndent(pubkeys, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mute list: %w", err)
	}
	if err := m.blobs.Save(mutedFile, data); err != nil {
		return fmt.Errorf("save mute list: %w", err)
	}
	return nil
}
