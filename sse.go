package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nostr-overlay/internal/pipeline"
)

// clientBuffer is the per-client send buffer. A client that stops
// reading loses messages rather than stalling the broadcast.
const clientBuffer = 64

// ssePingInterval keeps idle stream connections from being reaped by
// proxies or the OS.
const ssePingInterval = 30 * time.Second

// MessageBroadcaster fans emitted messages out to the attached stream
// clients. In practice there is one client (the overlay front end), but
// nothing breaks with several.
type MessageBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan pipeline.Message]struct{}
}

// NewMessageBroadcaster returns a broadcaster with no clients.
func NewMessageBroadcaster() *MessageBroadcaster {
	return &MessageBroadcaster{clients: make(map[chan pipeline.Message]struct{})}
}

// Subscribe registers a new client and returns its receive channel.
func (b *MessageBroadcaster) Subscribe() chan pipeline.Message {
	ch := make(chan pipeline.Message, clientBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *MessageBroadcaster) Unsubscribe(ch chan pipeline.Message) {
	b.mu.Lock()
	_, exists := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if exists {
		close(ch)
	}
}

// Broadcast delivers msg to every client, skipping any whose buffer is
// full.
func (b *MessageBroadcaster) Broadcast(msg pipeline.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
			slog.Debug("stream client backlogged, message skipped", "id", msg.ID)
		}
	}
}

// Close detaches every client and closes its channel, which makes the
// stream handlers return. Broadcast after Close delivers to nobody;
// Unsubscribe of an already-detached client stays a no-op.
func (b *MessageBroadcaster) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[chan pipeline.Message]struct{})
	b.mu.Unlock()
	for ch := range clients {
		close(ch)
	}
}

// ClientCount reports the number of attached stream clients.
func (b *MessageBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// streamHandler serves the live message stream as server-sent events.
// Each pipeline emission becomes one "message" event with a JSON body.
func (a *App) streamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.stream.Subscribe()
	defer a.stream.Unsubscribe(ch)
	slog.Debug("stream client attached", "remote_addr", r.RemoteAddr)

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Debug("stream client detached", "remote_addr", r.RemoteAddr)
			return
		}
	}
}
