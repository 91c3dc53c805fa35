// Package history keeps a bounded in-memory buffer of recently emitted
// messages so a front end attaching late can backfill its view instead
// of starting from a blank screen.
package history

import (
	"sync"

	"nostr-overlay/internal/pipeline"
)

// DefaultMaxMessages bounds the buffer when no explicit cap is given.
const DefaultMaxMessages = 500

// Buffer is a fixed-capacity message log with id-based deduplication.
// Oldest messages are evicted first.
type Buffer struct {
	mu    sync.RWMutex
	msgs  []pipeline.Message
	index map[string]bool // message id -> buffered
	max   int
}

// NewBuffer returns a buffer holding at most max messages. A max of
// zero or less falls back to DefaultMaxMessages.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &Buffer{
		msgs:  make([]pipeline.Message, 0, max),
		index: make(map[string]bool),
		max:   max,
	}
}

// Add appends msg unless a message with the same id is already
// buffered. Safe to use directly as a pipeline sink.
func (b *Buffer) Add(msg pipeline.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index[msg.ID] {
		return
	}
	if len(b.msgs) >= b.max {
		evicted := b.msgs[0]
		b.msgs = b.msgs[1:]
		delete(b.index, evicted.ID)
	}
	b.msgs = append(b.msgs, msg)
	b.index[msg.ID] = true
}

// Recent returns up to limit of the newest messages in arrival order
// (oldest of the returned slice first). limit <= 0 returns everything.
func (b *Buffer) Recent(limit int) []pipeline.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && len(b.msgs) > limit {
		start = len(b.msgs) - limit
	}
	return append([]pipeline.Message(nil), b.msgs[start:]...)
}

// Len reports how many messages are buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.msgs)
}
