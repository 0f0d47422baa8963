// Package registry holds the process-wide immutable configuration
// record: world rank, world size, block geometry, and logging options.
// It replaces the source project's lazily-initialized singleton
// (GlobalRegistry::get_instance) with a plain value built once in main
// and passed explicitly to every component that needs it — no lock is
// required after construction, and there is no ambient global to race on.
package registry

import (
	"fmt"
	"time"
)

// Registry is the read-only record every component is constructed with.
type Registry struct {
	WorldRank    int
	WorldSize    int
	NumBlocks    int
	BlockSize    int
	Timestamp    int64
	LogLevel     int
	PollInterval time.Duration
}

// Workers returns W, the number of ranks that maintain blocks. Rank
// WorldSize-1 is the broadcaster and is excluded.
func (r Registry) Workers() int {
	return r.WorldSize - 1
}

// IsBroadcaster reports whether this process's rank is the broadcaster.
func (r Registry) IsBroadcaster() bool {
	return r.WorldRank == r.WorldSize-1
}

const (
	minBlockSize = 1
	maxBlockSize = 32
	maxNumBlocks = 32
)

// New validates and constructs a Registry, returning an error for any
// out-of-bounds field; cmd/dsmd reports that error as a ConfigError.
func New(worldRank, worldSize, numBlocks, blockSize int, timestamp int64, logLevel int) (Registry, error) {
	r := Registry{
		WorldRank:    worldRank,
		WorldSize:    worldSize,
		NumBlocks:    numBlocks,
		BlockSize:    blockSize,
		Timestamp:    timestamp,
		LogLevel:     logLevel,
		PollInterval: time.Millisecond,
	}
	if worldSize < 2 {
		return Registry{}, fmt.Errorf("registry: world_size must be at least 2 (1 worker + broadcaster), got %d", worldSize)
	}
	if worldRank < 0 || worldRank >= worldSize {
		return Registry{}, fmt.Errorf("registry: world_rank %d out of range [0,%d)", worldRank, worldSize)
	}
	if blockSize < minBlockSize || blockSize > maxBlockSize {
		return Registry{}, fmt.Errorf("registry: block_size must be in [%d,%d], got %d", minBlockSize, maxBlockSize, blockSize)
	}
	workers := worldSize - 1
	if numBlocks < workers {
		return Registry{}, fmt.Errorf("registry: num_blocks must be >= worker count (%d), got %d", workers, numBlocks)
	}
	if numBlocks > maxNumBlocks {
		return Registry{}, fmt.Errorf("registry: num_blocks must be <= %d, got %d", maxNumBlocks, numBlocks)
	}
	if logLevel < 0 || logLevel > 2 {
		return Registry{}, fmt.Errorf("registry: log_level must be in {0,1,2}, got %d", logLevel)
	}
	return r, nil
}

// WithPollInterval returns a copy of r with a different listener poll
// interval; used by tests.
func (r Registry) WithPollInterval(d time.Duration) Registry {
	r.PollInterval = d
	return r
}
