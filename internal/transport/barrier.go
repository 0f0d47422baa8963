package transport

import (
	"fmt"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
)

// barrierCoordinator is the rank responsible for collecting every other
// rank's join frame and releasing them all at once. The engine always
// uses rank 0 for this, independent of which rank is the invalidation
// broadcaster (size-1).
const barrierCoordinator = 0

// Barrier blocks until every rank in the process group has called
// Barrier. spec.md §6 requires this to be called once during startup,
// after the listener tasks are launched and before the application loop
// enters its main phase.
func (t *Transport) Barrier() error {
	if t.rank == barrierCoordinator {
		select {
		case <-t.barrierDone:
			return nil
		case <-t.ctx.Done():
			return dsmerr.New(dsmerr.Transport, "transport.Barrier", t.ctx.Err())
		}
	}
	t.connsMu.Lock()
	conn, ok := t.conns[barrierCoordinator]
	t.connsMu.Unlock()
	if !ok {
		return dsmerr.New(dsmerr.Transport, "transport.Barrier", errNoCoordinatorConn)
	}
	if err := conn.writeFrame(t.ctx, frame{kind: kindBarrierJoin}); err != nil {
		return dsmerr.New(dsmerr.Transport, "transport.Barrier", err)
	}
	select {
	case <-t.barrierRel:
		return nil
	case <-t.ctx.Done():
		return dsmerr.New(dsmerr.Transport, "transport.Barrier", t.ctx.Err())
	}
}

// onBarrierJoin runs on the coordinator each time a participant's join
// frame arrives; once everyone has checked in, it releases them all.
func (t *Transport) onBarrierJoin(source int) {
	t.barrierMu.Lock()
	t.barrierSeen[source] = true
	ready := len(t.barrierSeen) == t.size-1
	t.barrierMu.Unlock()
	if !ready {
		return
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
		conn.writeFrame(t.ctx, frame{kind: kindBarrierRelease})
	}
	close(t.barrierDone)
}

var errNoCoordinatorConn = fmt.Errorf("no connection to barrier coordinator rank %d", barrierCoordinator)
