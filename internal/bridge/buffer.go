package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
	"github.com/tidemark/mqttbridge/internal/store"
)

// bufferedMessage is one publish held while the connection is down.
type bufferedMessage struct {
	handle string
	topic  string
	msg    *Message

	// seq is the persistence row, 0 when the buffer is memory-only.
	seq int64
}

// messageBuffer holds publishes issued while disconnected, in FIFO order,
// optionally mirrored to the SQLite store so a restart does not lose them.
//
// Thread Safety: all methods are safe for concurrent use.
type messageBuffer struct {
	cfg config.BufferConfig

	mu      sync.Mutex
	entries []*bufferedMessage
	persist *store.Store // nil when persistence is disabled
}

func newMessageBuffer(cfg config.BufferConfig, persist *store.Store) *messageBuffer {
	if !cfg.Persist {
		persist = nil
	}
	return &messageBuffer{cfg: cfg, persist: persist}
}

// enqueue appends an entry, applying the configured full-buffer policy.
//
// When the buffer is full and DropOldest is set, the oldest entry is evicted
// and returned so the caller can fail its token; otherwise ErrBufferFull is
// returned and the buffer is unchanged.
func (b *messageBuffer) enqueue(ctx context.Context, entry *bufferedMessage) (*bufferedMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var evicted *bufferedMessage
	if len(b.entries) >= b.cfg.MaxMessages {
		if !b.cfg.DropOldest {
			return nil, ErrBufferFull
		}
		evicted = b.entries[0]
		b.entries = b.entries[1:]
		if b.persist != nil && evicted.seq != 0 {
			if err := b.persist.Delete(ctx, evicted.seq); err != nil {
				return evicted, fmt.Errorf("deleting evicted message: %w", err)
			}
		}
	}

	if b.persist != nil {
		seq, err := b.persist.Append(ctx, store.Message{
			Topic:    entry.topic,
			Payload:  entry.msg.Payload,
			QoS:      entry.msg.QoS,
			Retained: entry.msg.Retained,
		})
		if err != nil {
			return evicted, fmt.Errorf("persisting buffered message: %w", err)
		}
		entry.seq = seq
	}

	b.entries = append(b.entries, entry)
	return evicted, nil
}

// restore seeds the buffer with entries recovered from the store at startup.
// The entries keep their original sequence numbers and are not re-persisted.
func (b *messageBuffer) restore(entries []*bufferedMessage) {
	b.mu.Lock()
	b.entries = append(b.entries, entries...)
	b.mu.Unlock()
}

// drain removes and returns all entries in FIFO order for replay.
func (b *messageBuffer) drain() []*bufferedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries
	b.entries = nil
	return entries
}

// count returns the number of buffered entries.
func (b *messageBuffer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// get returns the entry at index i, oldest first, or nil if out of range.
func (b *messageBuffer) get(i int) *bufferedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.entries) {
		return nil
	}
	return b.entries[i]
}

// remove deletes the entry at index i, including its persisted row, and
// returns it. Returns nil if out of range.
func (b *messageBuffer) remove(ctx context.Context, i int) (*bufferedMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.entries) {
		return nil, nil
	}

	entry := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)

	if b.persist != nil && entry.seq != 0 {
		if err := b.persist.Delete(ctx, entry.seq); err != nil {
			return entry, fmt.Errorf("deleting buffered message: %w", err)
		}
	}
	return entry, nil
}

// clearPersisted removes the persisted row for a replayed entry.
func (b *messageBuffer) clearPersisted(ctx context.Context, entry *bufferedMessage) error {
	if b.persist == nil || entry.seq == 0 {
		return nil
	}
	return b.persist.Delete(ctx, entry.seq)
}
