package sender

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"nostr-overlay/internal/identity"
	"nostr-overlay/internal/store"
)

// fakeConn records published events.
type fakeConn struct {
	connected bool
	published []nostr.Event
	fail      error
}

func (f *fakeConn) Connected() bool { return f.connected }

func (f *fakeConn) Publish(_ context.Context, ev nostr.Event) error {
	if f.fail != nil {
		return f.fail
	}
	f.published = append(f.published, ev)
	return nil
}

func loadedKeys(t *testing.T) *identity.KeyStore {
	t.Helper()
	ks := identity.NewKeyStore(store.NewMemStore())
	if _, err := ks.LoadOrGenerate(); err != nil {
		t.Fatal(err)
	}
	return ks
}

func TestPublishTextSignsAndPublishes(t *testing.T) {
	ks := loadedKeys(t)
	conn := &fakeConn{connected: true}
	s := New(ks, conn)

	eventID, err := s.PublishText(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("PublishText failed: %v", err)
	}
	if len(conn.published) != 1 {
		t.Fatalf("published %d events, want 1", len(conn.published))
	}

	ev := conn.published[0]
	if ev.Kind != nostr.KindTextNote {
		t.Errorf("kind = %d, want %d", ev.Kind, nostr.KindTextNote)
	}
	if ev.Content != "hello world" {
		t.Errorf("content = %q, published content must be verbatim", ev.Content)
	}
	if ev.ID == "" || ev.ID != eventID {
		t.Errorf("returned id %q does not match event id %q", eventID, ev.ID)
	}
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		t.Errorf("published event signature invalid: ok=%v err=%v", ok, err)
	}

	id, _ := ks.Snapshot()
	if ev.PubKey != id.PublicKey {
		t.Errorf("event pubkey %q, want local identity %q", ev.PubKey, id.PublicKey)
	}
}

func TestPublishTextSkipsSpamSelfCheck(t *testing.T) {
	s := New(loadedKeys(t), &fakeConn{connected: true})
	// Content that inbound filtering would drop still publishes fine.
	if _, err := s.PublishText(context.Background(), "aaaaaaaaaaaaaaaa"); err != nil {
		t.Fatalf("PublishText of repeat-run content failed: %v", err)
	}
}

func TestPublishRequiresConnection(t *testing.T) {
	s := New(loadedKeys(t), &fakeConn{connected: false})
	if _, err := s.PublishText(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got err %v, want ErrNotConnected", err)
	}
}

func TestPublishSurfacesTransportError(t *testing.T) {
	conn := &fakeConn{connected: true, fail: errors.New("relay said no")}
	s := New(loadedKeys(t), conn)
	if _, err := s.PublishText(context.Background(), "hi"); err == nil {
		t.Error("transport failure was swallowed")
	}
}

func TestPublishChannelMessageTagsRoot(t *testing.T) {
	conn := &fakeConn{connected: true}
	s := New(loadedKeys(t), conn)

	if _, err := s.PublishChannelMessage(context.Background(), "chan123", "hey"); err != nil {
		t.Fatal(err)
	}
	ev := conn.published[0]
	if ev.Kind != nostr.KindChannelMessage {
		t.Errorf("kind = %d, want %d", ev.Kind, nostr.KindChannelMessage)
	}
	if len(ev.Tags) != 1 || ev.Tags[0][0] != "e" || ev.Tags[0][1] != "chan123" {
		t.Errorf("channel tags = %v", ev.Tags)
	}
}

func TestPublishProfileIncludesOnlySuppliedFields(t *testing.T) {
	conn := &fakeConn{connected: true}
	s := New(loadedKeys(t), conn)

	name := "alice99"
	empty := ""
	if _, err := s.PublishProfile(context.Background(), ProfileFields{
		Name:  &name,
		About: &empty, // explicitly clearing a field is allowed
	}); err != nil {
		t.Fatal(err)
	}

	ev := conn.published[0]
	if ev.Kind != nostr.KindProfileMetadata {
		t.Errorf("kind = %d, want %d", ev.Kind, nostr.KindProfileMetadata)
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(ev.Content), &metadata); err != nil {
		t.Fatalf("profile content is not a JSON object: %v", err)
	}
	if len(metadata) != 2 {
		t.Errorf("metadata has %d keys, want 2: %v", len(metadata), metadata)
	}
	if metadata["name"] != "alice99" {
		t.Errorf("name = %q", metadata["name"])
	}
	if about, ok := metadata["about"]; !ok || about != "" {
		t.Errorf("about = %q present=%v, want explicit empty", about, ok)
	}
	if _, ok := metadata["display_name"]; ok {
		t.Error("omitted display_name leaked into metadata")
	}
}
