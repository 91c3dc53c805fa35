package main

import (
	"net/http"
	"sync/atomic"
)

// Command-surface metrics
var (
	httpRequestsTotal atomic.Int64
	httpErrorsTotal   atomic.Int64
)

// Publish metrics
var (
	messagesPublished atomic.Int64
)

// statsHandler exposes the pipeline and command-surface counters for
// debugging a running overlay.
func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	pipe := a.pipe.Stats()
	writeJSON(w, map[string]any{
		"pipeline": pipe,
		"http": map[string]int64{
			"requests": httpRequestsTotal.Load(),
			"errors":   httpErrorsTotal.Load(),
		},
		"published":         messagesPublished.Load(),
		"buffered":          a.messages.Len(),
		"stream_clients":    a.stream.ClientCount(),
		"connected":         a.pool.Connected(),
		"configured_relays": len(a.relays.List()),
	})
}
