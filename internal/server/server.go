// Package server implements C4: the three long-lived listener loops
// each worker runs, one per message tag. Each loop is bound to the
// registry's configured poll interval (default 1ms) between probes,
// mirroring spec.md §4.4/§5.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/logger"
	"github.com/dsmlab/dsmengine/internal/store"
	"github.com/dsmlab/dsmengine/internal/transport"
	"github.com/dsmlab/dsmengine/internal/wire"
)

// Substrate is the slice of transport.Transport the listener loops
// need: probing, tagged receive/send, and the broadcast receive. A
// narrow interface here, as in internal/store, keeps the loops
// testable against an in-memory fake.
type Substrate interface {
	Probe(tag uint32) (ok bool, source int)
	Recv(tag uint32, source int) ([]byte, int, error)
	Send(tag uint32, dest int, payload []byte) error
	RecvBroadcast() ([]byte, error)
}

// RunReadListener services READ-REQ: probe, receive the 4-byte key,
// verify ownership, read the local block, and reply with tag
// READ-RESP. A READ-REQ for a key this worker does not own is a
// protocol violation and aborts the loop with BadKey, per spec.md §7 —
// there is no silent response to a misrouted request.
func RunReadListener(ctx context.Context, sub Substrate, local *store.Local, poll time.Duration, log *logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ok, source := sub.Probe(transport.TagReadReq)
		if !ok {
			time.Sleep(poll)
			continue
		}
		payload, from, err := sub.Recv(transport.TagReadReq, source)
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunReadListener", err)
		}
		key, err := wire.DecodeKey(payload)
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunReadListener", err)
		}
		if !local.Owns(key) {
			return dsmerr.New(dsmerr.BadKey, "server.RunReadListener", fmt.Errorf("READ-REQ for key %d from rank %d, not locally owned", key, from))
		}
		value, err := local.Read(key)
		if err != nil {
			return err
		}
		if err := sub.Send(transport.TagReadResp, from, value); err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunReadListener", err)
		}
		if log != nil {
			log.Debugf("served READ-REQ key=%d to rank=%d", key, from)
		}
	}
}

// RunWriteListener services WRITE-REQ: probe, receive 4+S bytes,
// decode to (key, payload), verify ownership, and apply the write
// through the local store (which dispatches the resulting invalidation
// itself).
func RunWriteListener(ctx context.Context, sub Substrate, local *store.Local, blockSize int, poll time.Duration, log *logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ok, source := sub.Probe(transport.TagWriteReq)
		if !ok {
			time.Sleep(poll)
			continue
		}
		payload, from, err := sub.Recv(transport.TagWriteReq, source)
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunWriteListener", err)
		}
		key, value, err := wire.DecodeWrite(payload, blockSize)
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunWriteListener", err)
		}
		if !local.Owns(key) {
			return dsmerr.New(dsmerr.BadKey, "server.RunWriteListener", fmt.Errorf("WRITE-REQ for key %d from rank %d, not locally owned", key, from))
		}
		if err := local.Write(key, value); err != nil {
			return err
		}
		if log != nil {
			log.Debugf("applied WRITE-REQ key=%d from rank=%d", key, from)
		}
	}
}

// RunInvalidateListener blocks on the group broadcast instead of
// probing: every broadcast is a 12-byte notification. Keys this worker
// owns are skipped (the owner already holds the truth); everything
// else is invalidated in the remote cache.
func RunInvalidateListener(ctx context.Context, sub Substrate, local *store.Local, remote *store.Remote, log *logger.Logger) error {
	for {
		var payload []byte
		var err error
		received := make(chan struct{})
		go func() { payload, err = sub.RecvBroadcast(); close(received) }()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-received:
		}
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunInvalidateListener", err)
		}
		key, _, err := wire.DecodeNotification(payload)
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "server.RunInvalidateListener", err)
		}
		if local.Owns(key) {
			continue
		}
		if err := remote.Invalidate(key); err != nil {
			return err
		}
		if log != nil {
			log.Debugf("invalidated key=%d", key)
		}
	}
}
