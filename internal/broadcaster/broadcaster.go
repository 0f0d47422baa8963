// Package broadcaster implements C6, the single serialization point for
// invalidations. It runs only on rank world_size-1, which owns no
// blocks.
package broadcaster

import (
	"context"
	"time"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/logger"
	"github.com/dsmlab/dsmengine/internal/transport"
)

// Substrate is the slice of transport.Transport the broadcaster needs.
type Substrate interface {
	Probe(tag uint32) (ok bool, source int)
	Recv(tag uint32, source int) ([]byte, int, error)
	Broadcast(root int, payload []byte) error
	Rank() int
}

// Run probes for INVALIDATE from any worker; each hit is received and
// re-emitted via the group broadcast rooted at this rank. This gives a
// total order on invalidations across the fleet: every worker's
// INVALIDATE listener sees them in the same sequence they were
// received here. A transport error on either side aborts the
// broadcaster; there is no fault-tolerance layer to fall back to.
func Run(ctx context.Context, sub Substrate, poll time.Duration, log *logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ok, source := sub.Probe(transport.TagInvalidate)
		if !ok {
			time.Sleep(poll)
			continue
		}
		payload, from, err := sub.Recv(transport.TagInvalidate, source)
		if err != nil {
			return dsmerr.New(dsmerr.Transport, "broadcaster.Run", err)
		}
		if err := sub.Broadcast(sub.Rank(), payload); err != nil {
			return dsmerr.New(dsmerr.Transport, "broadcaster.Run", err)
		}
		if log != nil {
			log.Debugf("re-broadcast invalidation from rank=%d", from)
		}
	}
}
