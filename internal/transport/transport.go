// Package transport is the process-group substrate spec.md treats as an
// external collaborator: rank/size queries, tagged point-to-point
// send/receive with an "any source" wildcard, a non-blocking probe, a
// broadcast primitive rooted at a given rank, and a startup barrier.
//
// There is no MPI binding in this module's dependency pack, so the
// substrate is a minimal full mesh of persistent WebSocket connections
// (nhooyr.io/websocket, the teacher's transport library) between every
// pair of ranks, bootstrapped from a static address table. It is
// explicitly out of scope for the coherence logic built on top of it
// (internal/store, internal/server, internal/broadcaster) — this
// package only needs to be correct and thread-safe, not clever.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
)

// AnySource is passed to Recv to accept a message from any peer,
// mirroring MPI_ANY_SOURCE.
const AnySource = -1

// Message tags, fixed per spec.md §6.
const (
	TagReadReq     uint32 = 100
	TagReadResp    uint32 = 101
	TagWriteReq    uint32 = 102
	TagInvalidate  uint32 = 103
)

// inbound is one received tagged message, queued until a matching Recv.
type inbound struct {
	source  int
	payload []byte
}

// tagQueue is the inbox for one message tag: a FIFO of inbound messages
// plus a condition variable so Recv can block until one arrives. Probe
// peeks without consuming, matching MPI_Iprobe/MPI_Recv semantics.
type tagQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []inbound
}

func newTagQueue() *tagQueue {
	q := &tagQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *tagQueue) push(msg inbound) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// probe reports whether any item is queued and, if so, returns its
// source without removing it.
func (q *tagQueue) probe(source int) (ok bool, from int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if source == AnySource || it.source == source {
			return true, it.source
		}
	}
	return false, 0
}

// recv blocks until a message matching source is available, then
// removes and returns it.
func (q *tagQueue) recv(ctx context.Context, source int) ([]byte, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for i, it := range q.items {
			if source == AnySource || it.source == source {
				q.items = append(q.items[:i], q.items[i+1:]...)
				return it.payload, it.source, nil
			}
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		// sync.Cond has no context-aware wait; this matches the
		// teacher's blocking-call style (websocket Read/Write already
		// take a context, but the in-process handoff here is a plain
		// condition variable, the same tool sneller's dcache.Cache
		// uses for its inflight-fill coordination).
		stop := context.AfterFunc(ctx, func() { q.mu.Lock(); q.cond.Broadcast(); q.mu.Unlock() })
		q.cond.Wait()
		stop()
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
	}
}

// Transport is the running process-group handle for one rank.
type Transport struct {
	rank, size int

	ctx    context.Context
	cancel context.CancelFunc

	connsMu sync.Mutex
	conns   map[int]*peerConn // by rank, excludes self

	queuesMu sync.Mutex
	queues   map[uint32]*tagQueue

	bcastQueue *tagQueue // kind=broadcast frames land here, apart from the per-tag queues

	barrierMu   sync.Mutex
	barrierSeen map[int]bool
	barrierRel  chan struct{}
	barrierDone chan struct{}
}

func newTransport(ctx context.Context, rank, size int) *Transport {
	cctx, cancel := context.WithCancel(ctx)
	return &Transport{
		rank:        rank,
		size:        size,
		ctx:         cctx,
		cancel:      cancel,
		conns:       make(map[int]*peerConn),
		queues:      make(map[uint32]*tagQueue),
		bcastQueue:  newTagQueue(),
		barrierSeen: make(map[int]bool),
		barrierRel:  make(chan struct{}),
		barrierDone: make(chan struct{}),
	}
}

func (t *Transport) Rank() int { return t.rank }
func (t *Transport) Size() int { return t.size }

func (t *Transport) queueFor(tag uint32) *tagQueue {
	t.queuesMu.Lock()
	defer t.queuesMu.Unlock()
	q, ok := t.queues[tag]
	if !ok {
		q = newTagQueue()
		t.queues[tag] = q
	}
	return q
}

// Send delivers payload to dest, tagged. It is safe to call
// concurrently with any other Transport method.
func (t *Transport) Send(tag uint32, dest int, payload []byte) error {
	t.connsMu.Lock()
	conn, ok := t.conns[dest]
	t.connsMu.Unlock()
	if !ok {
		return dsmerr.New(dsmerr.Transport, "transport.Send", fmt.Errorf("no connection to rank %d", dest))
	}
	if err := conn.writeFrame(t.ctx, frame{kind: kindTagged, tag: tag, payload: payload}); err != nil {
		return dsmerr.New(dsmerr.Transport, "transport.Send", err)
	}
	return nil
}

// Probe is a non-blocking check for a pending message with the given
// tag from any source. It never blocks and never consumes a message.
func (t *Transport) Probe(tag uint32) (ok bool, source int) {
	return t.queueFor(tag).probe(AnySource)
}

// Recv blocks until a message with the given tag arrives from source
// (or from any rank, if source == AnySource), then returns its payload.
func (t *Transport) Recv(tag uint32, source int) ([]byte, int, error) {
	payload, from, err := t.queueFor(tag).recv(t.ctx, source)
	if err != nil {
		return nil, 0, dsmerr.New(dsmerr.Transport, "transport.Recv", err)
	}
	return payload, from, nil
}

// dispatch routes one decoded frame from `source` into the right inbox.
func (t *Transport) dispatch(source int, f frame) {
	switch f.kind {
	case kindTagged:
		t.queueFor(f.tag).push(inbound{source: source, payload: f.payload})
	case kindBroadcast:
		t.bcastQueue.push(inbound{source: source, payload: f.payload})
	case kindBarrierJoin:
		t.onBarrierJoin(source)
	case kindBarrierRelease:
		close(t.barrierRel)
	}
}

// Broadcast re-emits payload to every other rank, called by the root.
// It gives a total order across all ranks only in the sense that this
// call fully completes its linear fan-out before returning; ordering
// across *different* calls to Broadcast from different callers is the
// caller's responsibility (in this engine, only internal/broadcaster
// ever calls Broadcast, so that total order holds by construction).
func (t *Transport) Broadcast(root int, payload []byte) error {
	if root != t.rank {
		return dsmerr.New(dsmerr.Transport, "transport.Broadcast", fmt.Errorf("Broadcast must be called by its root (%d), called by %d", root, t.rank))
	}
	t.connsMu.Lock()
	conns := make(map[int]*peerConn, len(t.conns))
	for k, v := range t.conns {
		conns[k] = v
	}
	t.connsMu.Unlock()
	for rank, conn := range conns {
		if rank == t.rank {
			continue
		}
		if err := conn.writeFrame(t.ctx, frame{kind: kindBroadcast, payload: payload}); err != nil {
			return dsmerr.New(dsmerr.Transport, "transport.Broadcast", err)
		}
	}
	return nil
}

// RecvBroadcast blocks until the next broadcast frame arrives from any
// root and returns its payload.
func (t *Transport) RecvBroadcast() ([]byte, error) {
	payload, _, err := t.bcastQueue.recv(t.ctx, AnySource)
	if err != nil {
		return nil, dsmerr.New(dsmerr.Transport, "transport.RecvBroadcast", err)
	}
	return payload, nil
}

// Close tears down every connection. Once Close returns, Send fails, and
// Recv/RecvBroadcast fail instead of blocking; a message that was
// already queued can still be received.
func (t *Transport) Close() error {
	t.cancel()
	t.connsMu.Lock()
	conns := make([]*peerConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.connsMu.Unlock()
	for _, c := range conns {
		c.close()
	}
	return nil
}
