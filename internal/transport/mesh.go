package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"nhooyr.io/websocket"
)

// Topology maps every rank in the process group to the address it
// listens on. It is loaded once at startup (see internal/config) and
// never changes — spec.md's Non-goals explicitly exclude dynamic
// membership.
type Topology map[int]string

// Dial establishes the full mesh of connections for `self` among
// `topology`: self dials every rank with a lower index, and accepts
// connections from every rank with a higher index on its own listed
// address. Each connection's read pump starts as soon as that
// connection is established; Dial blocks until every expected
// connection (both directions) is up, then returns a ready-to-use
// Transport.
//
// This is the one piece of engine startup with no counterpart in the
// original MPI program, which got a fully-connected process group for
// free from `mpirun`; see SPEC_FULL.md §1.
func Dial(ctx context.Context, self int, topology Topology) (*Transport, error) {
	size := len(topology)
	addr, ok := topology[self]
	if !ok {
		return nil, dsmerr.New(dsmerr.Config, "transport.Dial", fmt.Errorf("topology has no address for rank %d", self))
	}

	t := newTransport(ctx, self, size)

	expectIncoming := 0
	for r := range topology {
		if r > self {
			expectIncoming++
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	var lnWG sync.WaitGroup
	var srv *http.Server
	var ln net.Listener
	if expectIncoming > 0 {
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, dsmerr.New(dsmerr.Transport, "transport.Dial", err)
		}
		accepted := make(chan struct{}, expectIncoming)
		srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := websocket.Accept(w, r, nil)
			if err != nil {
				return
			}
			peerRank, err := readHello(ctx, ws)
			if err != nil {
				ws.Close(websocket.StatusProtocolError, "bad hello")
				return
			}
			pc := newPeerConn(peerRank, ws)
			t.connsMu.Lock()
			t.conns[peerRank] = pc
			t.connsMu.Unlock()
			wg.Add(1)
			go runReadLoop(ctx, t, pc, &wg, fail)
			accepted <- struct{}{}
		})}
		lnWG.Add(1)
		go func() {
			defer lnWG.Done()
			srv.Serve(ln)
		}()
		go func() {
			for i := 0; i < expectIncoming; i++ {
				select {
				case <-accepted:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for r, peerAddr := range topology {
		if r >= self {
			continue
		}
		ws, _, err := websocket.Dial(ctx, "ws://"+peerAddr+"/", nil)
		if err != nil {
			return nil, dsmerr.New(dsmerr.Transport, "transport.Dial", fmt.Errorf("dial rank %d at %s: %w", r, peerAddr, err))
		}
		if err := writeHello(ctx, ws, self); err != nil {
			return nil, dsmerr.New(dsmerr.Transport, "transport.Dial", err)
		}
		pc := newPeerConn(r, ws)
		t.connsMu.Lock()
		t.conns[r] = pc
		t.connsMu.Unlock()
		wg.Add(1)
		go runReadLoop(ctx, t, pc, &wg, fail)
	}

	if err := waitForMesh(ctx, t, size, self); err != nil {
		return nil, dsmerr.New(dsmerr.Transport, "transport.Dial", err)
	}

	if srv != nil {
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func waitForMesh(ctx context.Context, t *Transport, size, self int) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		t.connsMu.Lock()
		have := len(t.conns)
		t.connsMu.Unlock()
		if have == size-1 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("mesh bootstrap timed out for rank %d: have %d/%d peers", self, have, size-1)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func runReadLoop(ctx context.Context, t *Transport, pc *peerConn, wg *sync.WaitGroup, fail func(error)) {
	defer wg.Done()
	err := pc.readLoop(ctx, t.dispatch)
	if err != nil && ctx.Err() == nil {
		fail(err)
	}
}

func writeHello(ctx context.Context, ws *websocket.Conn, rank int) error {
	payload := encodeFrame(frame{kind: kindHello, payload: []byte{byte(rank >> 24), byte(rank >> 16), byte(rank >> 8), byte(rank)}})
	return ws.Write(ctx, websocket.MessageBinary, payload)
}

func readHello(ctx context.Context, ws *websocket.Conn) (int, error) {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return 0, err
	}
	f, err := decodeFrame(data)
	if err != nil || f.kind != kindHello || len(f.payload) != 4 {
		return 0, fmt.Errorf("transport: malformed hello")
	}
	rank := int(f.payload[0])<<24 | int(f.payload[1])<<16 | int(f.payload[2])<<8 | int(f.payload[3])
	return rank, nil
}
