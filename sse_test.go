package main

import (
	"testing"

	"nostr-overlay/internal/pipeline"
)

func TestBroadcasterCloseDetachesClients(t *testing.T) {
	b := NewMessageBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()

	b.Close()

	if _, open := <-first; open {
		t.Error("first client channel still open after Close")
	}
	if _, open := <-second; open {
		t.Error("second client channel still open after Close")
	}
	if b.ClientCount() != 0 {
		t.Errorf("client count = %d after Close", b.ClientCount())
	}

	// The pipeline sink may still fire during teardown; broadcasting
	// into a closed broadcaster must not panic or block.
	b.Broadcast(pipeline.Message{ID: "late"})

	// A stream handler unwinding after Close unsubscribes a channel
	// that is already gone.
	b.Unsubscribe(first)
}

func TestBroadcasterUnsubscribeThenCloseDoesNotDoubleClose(t *testing.T) {
	b := NewMessageBroadcaster()
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	b.Close()
}
