package store

import (
	"fmt"
	"sync"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/transport"
	"github.com/dsmlab/dsmengine/internal/wire"
)

// Fetcher is the narrow slice of transport.Transport that Remote needs:
// a point-to-point send and a blocking receive from a specific source.
type Fetcher interface {
	Send(tag uint32, dest int, payload []byte) error
	Recv(tag uint32, source int) ([]byte, int, error)
}

// slot is a cache entry's state. filled is an explicit sentinel rather
// than using a nil bytes slice to mean Empty, so a zero-length Filled
// block (blockSize could in principle be read as such) is never
// confused with Empty.
type slot struct {
	filled bool
	bytes  []byte
}

// Remote is C2: the per-process cache of blocks maintained elsewhere.
// owner is fixed at construction and never changes.
type Remote struct {
	mu        sync.RWMutex
	owner     map[int]int // key -> owning rank
	cache     map[int]*slot
	blockSize int

	fetcher Fetcher
}

// NewRemote builds a Remote cache covering exactly the given keys, each
// mapped to its owning rank (per internal/memmap), all initially Empty.
func NewRemote(owner map[int]int, blockSize int, fetcher Fetcher) *Remote {
	cache := make(map[int]*slot, len(owner))
	for k := range owner {
		cache[k] = &slot{}
	}
	return &Remote{owner: owner, cache: cache, blockSize: blockSize, fetcher: fetcher}
}

// Read returns a copy of the cached bytes for k, fetching from the
// owner on a miss. The whole fetch runs under the cache's single
// read/write lock, as the source does; this serializes concurrent
// misses on different keys but guarantees at most one in-flight fetch
// per key and is correct under duplicate fetches of the same key.
func (r *Remote) Read(k int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.cache[k]
	if !ok {
		return nil, dsmerr.New(dsmerr.BadKey, "store.Remote.Read", fmt.Errorf("key %d is not remote", k))
	}
	if s.filled {
		out := make([]byte, len(s.bytes))
		copy(out, s.bytes)
		return out, nil
	}

	owner := r.owner[k]
	if err := r.fetcher.Send(transport.TagReadReq, owner, wire.EncodeKey(k)); err != nil {
		return nil, dsmerr.New(dsmerr.Transport, "store.Remote.Read", err)
	}
	payload, _, err := r.fetcher.Recv(transport.TagReadResp, owner)
	if err != nil {
		return nil, dsmerr.New(dsmerr.Transport, "store.Remote.Read", err)
	}
	if len(payload) != r.blockSize {
		return nil, dsmerr.New(dsmerr.Transport, "store.Remote.Read", fmt.Errorf("short READ-RESP from rank %d: want %d bytes, got %d", owner, r.blockSize, len(payload)))
	}

	filled := make([]byte, len(payload))
	copy(filled, payload)
	s.filled = true
	s.bytes = filled

	out := make([]byte, len(filled))
	copy(out, filled)
	return out, nil
}

// Write sends a WRITE-REQ to the owner and returns without waiting for
// acknowledgement. It does not touch the local cache slot; the
// invalidation that eventually arrives via broadcast is what keeps this
// process's own view of k coherent.
func (r *Remote) Write(k int, v []byte) error {
	r.mu.RLock()
	owner, ok := r.owner[k]
	r.mu.RUnlock()
	if !ok {
		return dsmerr.New(dsmerr.BadKey, "store.Remote.Write", fmt.Errorf("key %d is not remote", k))
	}
	if err := r.fetcher.Send(transport.TagWriteReq, owner, wire.EncodeWrite(k, v)); err != nil {
		return dsmerr.New(dsmerr.Transport, "store.Remote.Write", err)
	}
	return nil
}

// Invalidate sets the cache slot for k to Empty. Idempotent.
func (r *Remote) Invalidate(k int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.cache[k]
	if !ok {
		return dsmerr.New(dsmerr.BadKey, "store.Remote.Invalidate", fmt.Errorf("key %d is not remote", k))
	}
	s.filled = false
	s.bytes = nil
	return nil
}

// Dump returns a deep copy of the cache; Empty slots appear as a nil
// entry (the sentinel null spec.md calls for at the snapshot boundary).
func (r *Remote) Dump() map[int][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int][]byte, len(r.cache))
	for k, s := range r.cache {
		if !s.filled {
			out[k] = nil
			continue
		}
		cp := make([]byte, len(s.bytes))
		copy(cp, s.bytes)
		out[k] = cp
	}
	return out
}

// Owns reports whether k is cached remotely by this process (i.e. is a
// non-local key known to the memory map).
func (r *Remote) Owns(k int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[k]
	return ok
}
