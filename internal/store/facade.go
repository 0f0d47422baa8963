package store

import (
	"fmt"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/memmap"
)

// Facade is C3: it holds the local store and the remote cache and a
// route map of key -> {local, remote}, computed once at construction.
// Application code goes through the facade; the server listeners are
// handed the same Local and Remote and use them directly.
type Facade struct {
	local     *Local
	remote    *Remote
	route     []bool // true == local, indexed by key in [0, numBlocks)
	blockSize int
	numBlocks int
}

// NewFacade builds the facade for one worker. mm is the process-wide
// memory map; self is this worker's rank, which is both its world rank
// and its index among the W workers (workers are ranks 0..W-1; the
// broadcaster never constructs a Facade).
func NewFacade(local *Local, remote *Remote, mm memmap.Map, self, numBlocks, blockSize int) *Facade {
	route := make([]bool, numBlocks)
	for k := 0; k < numBlocks; k++ {
		route[k] = memmap.Owner(k, mm.Workers()) == self
	}
	return &Facade{local: local, remote: remote, route: route, blockSize: blockSize, numBlocks: numBlocks}
}

func (f *Facade) isLocal(k int) bool {
	return k >= 0 && k < len(f.route) && f.route[k]
}

// Read returns a copy of the current bytes for key k, routed to the
// local store or the remote cache.
func (f *Facade) Read(k int) ([]byte, error) {
	if k < 0 || k >= f.numBlocks {
		return nil, dsmerr.New(dsmerr.BadKey, "store.Facade.Read", fmt.Errorf("key %d out of [0,%d)", k, f.numBlocks))
	}
	if f.isLocal(k) {
		return f.local.Read(k)
	}
	return f.remote.Read(k)
}

// Write replaces the bytes for key k, routed to the local store or the
// remote cache.
func (f *Facade) Write(k int, v []byte) error {
	if k < 0 || k >= f.numBlocks {
		return dsmerr.New(dsmerr.BadKey, "store.Facade.Write", fmt.Errorf("key %d out of [0,%d)", k, f.numBlocks))
	}
	if f.isLocal(k) {
		return f.local.Write(k, v)
	}
	return f.remote.Write(k, v)
}

// Invalidate is only valid for a key this process does not own.
func (f *Facade) Invalidate(k int) error {
	if f.isLocal(k) {
		return dsmerr.New(dsmerr.BadKey, "store.Facade.Invalidate", fmt.Errorf("key %d is locally owned, not invalidatable", k))
	}
	return f.remote.Invalidate(k)
}

// Dump merges both stores' snapshots into a single map covering
// [0, numBlocks).
func (f *Facade) Dump() map[int][]byte {
	out := make(map[int][]byte, f.numBlocks)
	for k, v := range f.local.Dump() {
		out[k] = v
	}
	for k, v := range f.remote.Dump() {
		out[k] = v
	}
	return out
}

// blockCount computes ceil(size/S) under the stricter contract adopted
// from spec.md §9's open question: size must be an exact multiple of
// the block size. The source pads or over-reads the tail block
// instead; this implementation rejects the call up front rather than
// touching bytes outside the caller's buffer.
func (f *Facade) blockCount(size int) (int, error) {
	if size <= 0 || size%f.blockSize != 0 {
		return 0, dsmerr.New(dsmerr.OutOfRange, "store.Facade", fmt.Errorf("size %d is not a positive multiple of block size %d", size, f.blockSize))
	}
	return size / f.blockSize, nil
}

// WriteRange is the engine's public write primitive: position is a block
// index, size is in bytes, and ceil(size/S) blocks starting at
// position are overwritten from buf. Returns an OutOfRange error
// (recoverable; callers translate it to return code 1) if
// position+n > numBlocks or size is not a multiple of the block size.
// Every other error is fatal per the engine's error policy.
func (f *Facade) WriteRange(position int, buf []byte, size int) error {
	n, err := f.blockCount(size)
	if err != nil {
		return err
	}
	if position < 0 || position+n > f.numBlocks {
		return dsmerr.New(dsmerr.OutOfRange, "store.Facade.WriteRange", fmt.Errorf("position %d + %d blocks exceeds %d", position, n, f.numBlocks))
	}
	if len(buf) < size {
		return dsmerr.New(dsmerr.OutOfRange, "store.Facade.WriteRange", fmt.Errorf("buffer shorter than size %d", size))
	}
	for i := 0; i < n; i++ {
		block := make([]byte, f.blockSize)
		copy(block, buf[i*f.blockSize:(i+1)*f.blockSize])
		if err := f.Write(position+i, block); err != nil {
			return err
		}
	}
	return nil
}

// ReadRange is the engine's public read primitive, symmetric to
// WriteRange: it fills buf with ceil(size/S) blocks starting at
// position.
func (f *Facade) ReadRange(position int, buf []byte, size int) error {
	n, err := f.blockCount(size)
	if err != nil {
		return err
	}
	if position < 0 || position+n > f.numBlocks {
		return dsmerr.New(dsmerr.OutOfRange, "store.Facade.ReadRange", fmt.Errorf("position %d + %d blocks exceeds %d", position, n, f.numBlocks))
	}
	if len(buf) < size {
		return dsmerr.New(dsmerr.OutOfRange, "store.Facade.ReadRange", fmt.Errorf("buffer shorter than size %d", size))
	}
	for i := 0; i < n; i++ {
		block, err := f.Read(position + i)
		if err != nil {
			return err
		}
		copy(buf[i*f.blockSize:(i+1)*f.blockSize], block)
	}
	return nil
}
