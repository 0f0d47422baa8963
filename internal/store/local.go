// Package store implements C1 (local authoritative blocks), C2 (remote
// read-cache) and C3 (the unified facade that routes between them and
// exposes the engine's public read/write primitives).
package store

import (
	"fmt"
	"sync"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/transport"
	"github.com/dsmlab/dsmengine/internal/wire"
)

// Notifier is the narrow slice of transport.Transport that Local needs
// to dispatch an invalidation after a write. Depending on an interface
// rather than *transport.Transport lets tests substitute an in-memory
// fake and observe exactly one INVALIDATE send per write.
type Notifier interface {
	Send(tag uint32, dest int, payload []byte) error
}

// Local is C1: the authoritative store for the blocks this worker
// maintains. The key set is fixed for the process lifetime.
type Local struct {
	mu        sync.RWMutex
	blocks    map[int][]byte
	blockSize int

	notifier    Notifier
	broadcaster int // rank that receives invalidation notifications
	clock       func() int64
}

// NewLocal builds a Local store pre-populated with zero-initialized
// blocks for exactly the given keys. notifier is used to send an
// INVALIDATE to broadcasterRank after every write; clock supplies the
// (informational-only) timestamp carried in that notification.
func NewLocal(keys []int, blockSize int, notifier Notifier, broadcasterRank int, clock func() int64) *Local {
	blocks := make(map[int][]byte, len(keys))
	for _, k := range keys {
		blocks[k] = make([]byte, blockSize)
	}
	return &Local{
		blocks:      blocks,
		blockSize:   blockSize,
		notifier:    notifier,
		broadcaster: broadcasterRank,
		clock:       clock,
	}
}

// Read returns a copy of the current bytes for k. Fails with BadKey if
// k is not one of the keys this store owns.
func (l *Local) Read(k int) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.blocks[k]
	if !ok {
		return nil, dsmerr.New(dsmerr.BadKey, "store.Local.Read", fmt.Errorf("key %d not owned locally", k))
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Write replaces the stored bytes for k with a copy of v, then
// synchronously sends an invalidation notification to the broadcaster.
// The write and the notification are not atomic with respect to a
// concurrent remote read of k arriving at this same moment; a reader
// observes either the old or the new value, never a torn one, but may
// race the notification in flight — see the engine's coherence model.
func (l *Local) Write(k int, v []byte) error {
	l.mu.Lock()
	b, ok := l.blocks[k]
	if !ok {
		l.mu.Unlock()
		return dsmerr.New(dsmerr.BadKey, "store.Local.Write", fmt.Errorf("key %d not owned locally", k))
	}
	copy(b, v)
	l.mu.Unlock()

	frame := wire.EncodeNotification(k, l.clock())
	if err := l.notifier.Send(transport.TagInvalidate, l.broadcaster, frame); err != nil {
		return dsmerr.New(dsmerr.Transport, "store.Local.Write", err)
	}
	return nil
}

// Dump returns a deep copy of the entire local map, for diagnostics.
func (l *Local) Dump() map[int][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int][]byte, len(l.blocks))
	for k, b := range l.blocks {
		cp := make([]byte, len(b))
		copy(cp, b)
		out[k] = cp
	}
	return out
}

// Owns reports whether k is one of the keys this store maintains.
func (l *Local) Owns(k int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.blocks[k]
	return ok
}
