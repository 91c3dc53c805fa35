// Package identity owns the local keypair: loading, generation, import,
// and export. The secret key never leaves this package unencoded except
// through ExportSecret.
package identity

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"nostr-overlay/internal/store"
)

// keysFile is the blob name for the persisted secret.
const keysFile = "keys.json"

var (
	// ErrCorruptStore means the persisted key blob exists but cannot be
	// parsed. A new identity is never generated over a corrupt blob:
	// that would orphan history already published under the old pubkey.
	ErrCorruptStore = errors.New("stored key is unreadable")

	// ErrInvalidKeyFormat means import input is neither nsec nor hex.
	ErrInvalidKeyFormat = errors.New("key is neither nsec nor hex")

	// ErrNotInitialized means no identity has been loaded yet.
	ErrNotInitialized = errors.New("no identity loaded")
)

// storedKeys is the on-disk shape of the secret blob.
type storedKeys struct {
	SecretKey string `json:"secret_key"` // hex
}

// Identity is a snapshot of the local keypair, both halves hex-encoded.
type Identity struct {
	SecretKey string
	PublicKey string
}

// KeyStore loads and persists the single local identity. All methods are
// safe for concurrent use; readers always observe a whole identity.
type KeyStore struct {
	mu    sync.RWMutex
	blobs store.Store
	id    *Identity
}

// NewKeyStore returns a KeyStore backed by the given blob store. No
// identity is loaded until LoadOrGenerate or Import succeeds.
func NewKeyStore(blobs store.Store) *KeyStore {
	return &KeyStore{blobs: blobs}
}

// LoadOrGenerate loads the persisted identity, or generates and persists
// a fresh one when no blob exists yet. A blob that exists but does not
// parse fails with ErrCorruptStore.
func (k *KeyStore) LoadOrGenerate() (Identity, error) {
	data, err := k.blobs.Load(keysFile)
	if err != nil {
		return Identity{}, err
	}

	if data != nil {
		var stored storedKeys
		if err := json.Unmarshal(data, &stored); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		id, err := identityFromSecret(stored.SecretKey)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		k.swap(id)
		return id, nil
	}

	id, err := identityFromSecret(nostr.GeneratePrivateKey())
	if err != nil {
		return Identity{}, fmt.Errorf("generate keypair: %w", err)
	}
	if err := k.persist(id); err != nil {
		return Identity{}, err
	}
	k.swap(id)
	return id, nil
}

// Import replaces the identity with one decoded from material, accepting
// either the nsec bech32 form or raw hex. The secret is persisted before
// the in-memory identity is swapped, so a crash in between never leaves
// memory ahead of disk.
func (k *KeyStore) Import(material string) (Identity, error) {
	material = strings.TrimSpace(material)

	var secret string
	if strings.HasPrefix(material, "nsec1") {
		prefix, value, err := nip19.Decode(material)
		if err != nil || prefix != "nsec" {
			return Identity{}, ErrInvalidKeyFormat
		}
		secret = value.(string)
	} else {
		raw, err := hex.DecodeString(material)
		if err != nil || len(raw) != 32 {
			return Identity{}, ErrInvalidKeyFormat
		}
		secret = strings.ToLower(material)
	}

	id, err := identityFromSecret(secret)
	if err != nil {
		return Identity{}, ErrInvalidKeyFormat
	}

	if err := k.persist(id); err != nil {
		return Identity{}, err
	}
	k.swap(id)
	return id, nil
}

// ExportSecret returns the secret key in its shareable nsec form.
func (k *KeyStore) ExportSecret() (string, error) {
	id, ok := k.Snapshot()
	if !ok {
		return "", ErrNotInitialized
	}
	nsec, err := nip19.EncodePrivateKey(id.SecretKey)
	if err != nil {
		return "", fmt.Errorf("encode secret: %w", err)
	}
	return nsec, nil
}

// PublicKey returns the public key in its shareable npub form.
func (k *KeyStore) PublicKey() (string, error) {
	id, ok := k.Snapshot()
	if !ok {
		return "", ErrNotInitialized
	}
	npub, err := nip19.EncodePublicKey(id.PublicKey)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return npub, nil
}

// PublicKeyHex returns the raw hex public key.
func (k *KeyStore) PublicKeyHex() (string, error) {
	id, ok := k.Snapshot()
	if !ok {
		return "", ErrNotInitialized
	}
	return id.PublicKey, nil
}

// Snapshot returns a copy of the current identity and whether one is
// loaded.
func (k *KeyStore) Snapshot() (Identity, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.id == nil {
		return Identity{}, false
	}
	return *k.id, true
}

func (k *KeyStore) swap(id Identity) {
	k.mu.Lock()
	k.id = &id
	k.mu.Unlock()
}

func (k *KeyStore) persist(id Identity) error {
	data, err := json.MarshalIndent(storedKeys{SecretKey: id.SecretKey}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key blob: %w", err)
	}
	return k.blobs.Save(keysFile, data)
}

func identityFromSecret(secret string) (Identity, error) {
	pub, err := nostr.GetPublicKey(secret)
	if err != nil {
		return Identity{}, err
	}
	return Identity{SecretKey: secret, PublicKey: pub}, nil
}
