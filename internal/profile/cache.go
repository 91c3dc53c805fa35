// Package profile caches the latest known display metadata per author.
// The cache is purely in-memory: it is rebuilt from the live event
// stream each session and never persisted.
package profile

import (
	"encoding/json"
	"sync"

	"github.com/nbd-wtf/go-nostr/nip19"
)

// Profile is the kind-0 display metadata for one author. Every field is
// optional.
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
}

// Cache maps author pubkey (hex) to their latest Profile. Reads and
// writes may race from the pipeline and command handlers; a reader
// always sees one whole profile, never fields from two updates.
type Cache struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{profiles: make(map[string]Profile)}
}

// Update overwrites the cached profile for pubkey. Latest write wins;
// no event-timestamp comparison is made, so an out-of-order profile
// event overwrites a newer one (known limitation, kept deliberately).
func (c *Cache) Update(pubkey string, p Profile) {
	c.mu.Lock()
	c.profiles[pubkey] = p
	c.mu.Unlock()
}

// ApplyMetadata merges a kind-0 content payload into the cached profile
// for pubkey. Only keys present in the payload touch the cached value;
// a key explicitly set to "" clears that field. Returns false when the
// payload is not a JSON object.
func (c *Cache) ApplyMetadata(pubkey string, content string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.profiles[pubkey]
	applyString(fields, "name", &p.Name)
	applyString(fields, "display_name", &p.DisplayName)
	applyString(fields, "about", &p.About)
	applyString(fields, "picture", &p.Picture)
	applyString(fields, "website", &p.Website)
	applyString(fields, "nip05", &p.NIP05)
	c.profiles[pubkey] = p
	return true
}

// Get returns a copy of the cached profile for pubkey, if any.
func (c *Cache) Get(pubkey string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[pubkey]
	return p, ok
}

// DisplayName resolves the name shown for pubkey: the cached display
// name, else the cached name (empty strings skipped), else a shortened
// form of the npub encoding.
func (c *Cache) DisplayName(pubkey string) string {
	c.mu.RLock()
	p, ok := c.profiles[pubkey]
	c.mu.RUnlock()

	if ok {
		if p.DisplayName != "" {
			return p.DisplayName
		}
		if p.Name != "" {
			return p.Name
		}
	}
	return ShortName(pubkey)
}

// ShortName returns the abbreviated shareable encoding of a pubkey:
// npub1abc...wxyz. Encodings of 12 characters or fewer are returned
// whole; a pubkey that fails to encode falls back to its hex form.
func ShortName(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		npub = pubkey
	}
	if len(npub) > 12 {
		return npub[:8] + "..." + npub[len(npub)-4:]
	}
	return npub
}

// applyString copies fields[key] into dst when the key is present and
// holds a string. Non-string values for a known key are ignored.
func applyString(fields map[string]json.RawMessage, key string, dst *string) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return
	}
	*dst = s
}
