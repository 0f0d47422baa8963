package transport

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

// peerConn is one end of the full-mesh connection to another rank. Its
// write path is guarded by a mutex so Send calls from multiple
// goroutines (the three listener loops, the broadcaster, the workload
// generator) never interleave partial frames on the wire — the same
// discipline the teacher's ipc.Publisher uses around its net.Conn.
type peerConn struct {
	rank int
	ws   *websocket.Conn

	writeMu sync.Mutex
}

func newPeerConn(rank int, ws *websocket.Conn) *peerConn {
	ws.SetReadLimit(64 << 20)
	return &peerConn{rank: rank, ws: ws}
}

func (p *peerConn) writeFrame(ctx context.Context, f frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.Write(ctx, websocket.MessageBinary, encodeFrame(f))
}

// readLoop decodes frames off the wire until the connection closes or
// the context is canceled, handing each one to dispatch. It runs for
// the lifetime of the process; a transport error here is fatal, per
// spec.md's error handling policy — there is no reconnect.
func (p *peerConn) readLoop(ctx context.Context, dispatch func(source int, f frame)) error {
	for {
		_, data, err := p.ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("transport: read from rank %d: %w", p.rank, err)
		}
		f, err := decodeFrame(data)
		if err != nil {
			return fmt.Errorf("transport: decode from rank %d: %w", p.rank, err)
		}
		dispatch(p.rank, f)
	}
}

func (p *peerConn) close() {
	p.ws.Close(websocket.StatusNormalClosure, "shutting down")
}
