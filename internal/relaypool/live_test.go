package relaypool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/net/websocket"
)

// newFakeRelay serves the handler over an in-process websocket so pool
// behavior can be exercised without a network relay.
func newFakeRelay(handler websocket.Handler) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		// The client sends no origin header; skip the default check.
		Handshake: func(conf *websocket.Config, r *http.Request) error { return nil },
		Handler:   handler,
	})
}

func wsURL(srv *httptest.Server) string {
	return strings.Replace(srv.URL, "http", "ws", 1)
}

// The subscription must stay alive after the context used for dialing
// and connecting is cancelled. Connect is driven by an HTTP request
// whose context dies when the handler returns; an event arriving after
// that must still flow through the merged stream.
func TestSubscriptionOutlivesConnectContext(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev := nostr.Event{
		Kind:      nostr.KindTextNote,
		Content:   "still alive",
		CreatedAt: nostr.Now(),
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	subscribed := make(chan struct{})
	push := make(chan struct{})
	done := make(chan struct{})

	srv := newFakeRelay(func(conn *websocket.Conn) {
		defer conn.Close()

		// Wait for the REQ, remember its id, then hold the event back
		// until the test says the connect context is gone.
		var subID string
		for {
			var raw []json.RawMessage
			if websocket.JSON.Receive(conn, &raw) != nil {
				return
			}
			var typ string
			if len(raw) < 2 || json.Unmarshal(raw[0], &typ) != nil || typ != "REQ" {
				continue
			}
			if json.Unmarshal(raw[1], &subID) != nil {
				return
			}
			break
		}
		close(subscribed)

		<-push
		websocket.JSON.Send(conn, []any{"EVENT", subID, json.RawMessage(payload)})
		<-done
	})
	defer srv.Close()
	defer close(done)

	p := New()
	defer p.Close()

	connectCtx, cancel := context.WithCancel(context.Background())
	if err := p.Connect(connectCtx, []string{wsURL(srv)}); err != nil {
		t.Fatal(err)
	}
	events, err := p.Subscribe(nostr.Filters{{Kinds: []int{nostr.KindTextNote}}})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("relay never saw the subscription")
	}

	// The request that drove Connect is over.
	cancel()
	time.Sleep(50 * time.Millisecond)

	close(push)
	select {
	case got := <-events:
		if got.ID != ev.ID {
			t.Errorf("delivered event id = %q, want %q", got.ID, ev.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event published after cancel never reached the merged stream")
	}
}

// A relay added while a subscription is active joins it and delivers
// events, regardless of what happens to the context Add was called with.
func TestLateRelayJoinsActiveSubscription(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev := nostr.Event{
		Kind:      nostr.KindTextNote,
		Content:   "from the late relay",
		CreatedAt: nostr.Now(),
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})

	// First relay: accepts the subscription, never sends anything.
	quiet := newFakeRelay(func(conn *websocket.Conn) {
		defer conn.Close()
		var raw []json.RawMessage
		for websocket.JSON.Receive(conn, &raw) == nil {
		}
	})
	defer quiet.Close()

	// Second relay: answers the REQ with one event.
	talkative := newFakeRelay(func(conn *websocket.Conn) {
		defer conn.Close()
		var subID string
		for {
			var raw []json.RawMessage
			if websocket.JSON.Receive(conn, &raw) != nil {
				return
			}
			var typ string
			if len(raw) < 2 || json.Unmarshal(raw[0], &typ) != nil || typ != "REQ" {
				continue
			}
			if json.Unmarshal(raw[1], &subID) != nil {
				return
			}
			break
		}
		websocket.JSON.Send(conn, []any{"EVENT", subID, json.RawMessage(payload)})
		<-done
	})
	defer talkative.Close()
	defer close(done)

	p := New()
	defer p.Close()

	if err := p.Connect(context.Background(), []string{wsURL(quiet)}); err != nil {
		t.Fatal(err)
	}
	events, err := p.Subscribe(nostr.Filters{{Kinds: []int{nostr.KindTextNote}}})
	if err != nil {
		t.Fatal(err)
	}

	addCtx, cancel := context.WithCancel(context.Background())
	if err := p.AddRelay(addCtx, wsURL(talkative)); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case got := <-events:
		if got.ID != ev.ID {
			t.Errorf("delivered event id = %q, want %q", got.ID, ev.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event from late-added relay never reached the merged stream")
	}
}
