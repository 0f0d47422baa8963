// Package workload is the demo driver: it calls the facade's public
// Read/Write primitives on a timer so the engine has something to do
// in a standalone run. spec.md §1 lists this generator among the
// out-of-scope external collaborators — it carries no coherence logic
// of its own.
package workload

import (
	"context"
	"math/rand"
	"time"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/logger"
	"github.com/dsmlab/dsmengine/internal/store"
)

// Generator drives a single worker's facade with a random mix of reads
// and writes across the whole logical address space.
type Generator struct {
	facade    *store.Facade
	numBlocks int
	blockSize int
	interval  time.Duration
	rng       *rand.Rand
	log       *logger.Logger
}

// New builds a Generator. seed should differ per worker (e.g. the
// worker's rank) so concurrently running workers do not touch the
// address space in lockstep.
func New(facade *store.Facade, numBlocks, blockSize int, interval time.Duration, seed int64, log *logger.Logger) *Generator {
	return &Generator{
		facade:    facade,
		numBlocks: numBlocks,
		blockSize: blockSize,
		interval:  interval,
		rng:       rand.New(rand.NewSource(seed)),
		log:       log,
	}
}

// Run ticks until ctx is canceled, each tick issuing one random read or
// write of a single block through the facade's public range API.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *Generator) tick() {
	position := g.rng.Intn(g.numBlocks)
	if g.rng.Intn(2) == 0 {
		buf := make([]byte, g.blockSize)
		g.rng.Read(buf)
		if err := g.facade.WriteRange(position, buf, g.blockSize); err != nil {
			g.logOutOfRange("write", position, err)
			return
		}
		if g.log != nil {
			g.log.Debugf("workload: wrote block %d", position)
		}
		return
	}
	buf := make([]byte, g.blockSize)
	if err := g.facade.ReadRange(position, buf, g.blockSize); err != nil {
		g.logOutOfRange("read", position, err)
		return
	}
	if g.log != nil {
		g.log.Debugf("workload: read block %d", position)
	}
}

func (g *Generator) logOutOfRange(op string, position int, err error) {
	if g.log == nil {
		return
	}
	if dsmerr.Is(err, dsmerr.OutOfRange) {
		g.log.Debugf("workload: %s at %d out of range: %v", op, position, err)
		return
	}
	g.log.Errorf("workload: %s at %d failed: %v", op, position, err)
}
