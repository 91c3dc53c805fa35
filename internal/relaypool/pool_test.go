package relaypool

import (
	"context"
	"fmt"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestOperationsBeforeConnect(t *testing.T) {
	p := New()

	if p.Connected() {
		t.Error("pool reports connected before Connect")
	}
	if _, err := p.Subscribe(nostr.Filters{{}}); err != ErrNotConnected {
		t.Errorf("Subscribe error = %v, want ErrNotConnected", err)
	}
	if err := p.Publish(context.Background(), nostr.Event{}); err != ErrNotConnected {
		t.Errorf("Publish error = %v, want ErrNotConnected", err)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	p := New()

	if p.alreadySeen("ev1") {
		t.Error("fresh id reported as seen")
	}
	if !p.alreadySeen("ev1") {
		t.Error("repeated id not reported as seen")
	}
	if p.alreadySeen("ev2") {
		t.Error("unrelated id reported as seen")
	}
}

func TestSeenSetResets(t *testing.T) {
	p := New()

	for i := 0; i <= seenResetThreshold; i++ {
		p.alreadySeen(fmt.Sprintf("id-%d", i))
	}
	// The set was cleared past the threshold, so an early id reads as
	// fresh again.
	if p.alreadySeen("id-0") {
		t.Error("early id still reported as seen after reset")
	}
}

func TestCloseIsIdempotentAndEndsStream(t *testing.T) {
	p := New()

	p.Close()
	p.Close() // second close must not panic

	if _, open := <-p.events; open {
		t.Error("event stream still open after Close")
	}
	if p.Connected() {
		t.Error("pool reports connected after Close")
	}
}

func TestRemoveUnknownRelayIsNoOp(t *testing.T) {
	p := New()
	if err := p.RemoveRelay("wss://never-added.example.com"); err != nil {
		t.Errorf("RemoveRelay on unknown url = %v", err)
	}
}
