// Package sender composes and publishes outbound events: text posts,
// channel messages, and profile updates. It is stateless beyond reading
// the current identity and the connection handle.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"nostr-overlay/internal/identity"
)

// ErrNotConnected is returned when publishing is attempted before a
// connection exists.
var ErrNotConnected = errors.New("not connected")

// Publisher is the slice of the connection the sender needs.
type Publisher interface {
	Connected() bool
	Publish(ctx context.Context, ev nostr.Event) error
}

// KeySource supplies the identity that signs outbound events.
type KeySource interface {
	Snapshot() (identity.Identity, bool)
}

// ProfileFields carries a partial profile update. Nil fields are left
// out of the published metadata entirely, so an update never clobbers
// fields it does not mention.
type ProfileFields struct {
	Name        *string
	DisplayName *string
	About       *string
	Picture     *string
	Website     *string
	NIP05       *string
}

// Sender publishes signed events through the live connection.
type Sender struct {
	keys KeySource
	conn Publisher
}

// New returns a sender signing with keys and publishing through conn.
func New(keys KeySource, conn Publisher) *Sender {
	return &Sender{keys: keys, conn: conn}
}

// PublishText publishes content verbatim as a text post and returns the
// new event id. No client-side spam check is applied; the inbound
// heuristics are for filtering what others send, not self-censorship.
func (s *Sender) PublishText(ctx context.Context, content string) (string, error) {
	return s.publish(ctx, nostr.Event{
		Kind:    nostr.KindTextNote,
		Content: content,
	})
}

// PublishChannelMessage publishes content into the channel rooted at
// channelID (the channel-creation event id).
func (s *Sender) PublishChannelMessage(ctx context.Context, channelID, content string) (string, error) {
	return s.publish(ctx, nostr.Event{
		Kind:    nostr.KindChannelMessage,
		Content: content,
		Tags:    nostr.Tags{{"e", channelID, "", "root"}},
	})
}

// PublishProfile publishes a profile-update event containing exactly
// the supplied fields. Receivers treat it as a partial update.
func (s *Sender) PublishProfile(ctx context.Context, fields ProfileFields) (string, error) {
	metadata := make(map[string]string)
	set := func(key string, value *string) {
		if value != nil {
			metadata[key] = *value
		}
	}
	set("name", fields.Name)
	set("display_name", fields.DisplayName)
	set("about", fields.About)
	set("picture", fields.Picture)
	set("website", fields.Website)
	set("nip05", fields.NIP05)

	content, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode profile metadata: %w", err)
	}
	return s.publish(ctx, nostr.Event{
		Kind:    nostr.KindProfileMetadata,
		Content: string(content),
	})
}

func (s *Sender) publish(ctx context.Context, ev nostr.Event) (string, error) {
	if s.conn == nil || !s.conn.Connected() {
		return "", ErrNotConnected
	}
	id, ok := s.keys.Snapshot()
	if !ok {
		return "", identity.ErrNotInitialized
	}

	ev.CreatedAt = nostr.Now()
	if err := ev.Sign(id.SecretKey); err != nil {
		return "", fmt.Errorf("sign event: %w", err)
	}
	if err := s.conn.Publish(ctx, ev); err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return ev.ID, nil
}
