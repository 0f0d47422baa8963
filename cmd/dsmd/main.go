// Command dsmd runs one rank of the DSM engine. Every rank in the
// cluster runs this same binary; DSM_RANK and the peer topology file
// tell it which one it is.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dsmlab/dsmengine/internal/broadcaster"
	"github.com/dsmlab/dsmengine/internal/config"
	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/logger"
	"github.com/dsmlab/dsmengine/internal/memmap"
	"github.com/dsmlab/dsmengine/internal/registry"
	"github.com/dsmlab/dsmengine/internal/server"
	"github.com/dsmlab/dsmengine/internal/store"
	"github.com/dsmlab/dsmengine/internal/transport"
	"github.com/dsmlab/dsmengine/internal/workload"
)

const (
	defaultBlockSize = 8
	defaultNumBlocks = 4
)

// cliArgs mirrors program_args from the original CLI: up to four
// positional values in the fixed order log_level, timestamp_tag,
// block_size, num_blocks. A fifth slot is reserved and unused.
type cliArgs struct {
	logLevel  int
	timestamp int64
	blockSize int
	numBlocks int
}

func captureArgs(argv []string) (cliArgs, error) {
	a := cliArgs{
		logLevel:  int(logger.Info),
		timestamp: time.Now().UnixNano(),
		blockSize: defaultBlockSize,
		numBlocks: defaultNumBlocks,
	}
	if len(argv) > 5 {
		return cliArgs{}, fmt.Errorf(
			"Entrada inválida: %v\nDeve ser %s <log_level> <timestamp_tag> <block_size> <num_blocks>",
			argv, os.Args[0])
	}
	fields := []*int{&a.logLevel, nil, &a.blockSize, &a.numBlocks}
	for i, raw := range argv {
		if i >= len(fields) || fields[i] == nil {
			if i == 1 {
				ts, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return cliArgs{}, fmt.Errorf("timestamp_tag inválido: %q", raw)
				}
				a.timestamp = ts
				continue
			}
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return cliArgs{}, fmt.Errorf("argumento posicional %d inválido: %q", i, raw)
		}
		*fields[i] = v
	}
	return a, nil
}

func validateArgs(a cliArgs, worldSize int) error {
	if a.numBlocks <= 0 {
		return fmt.Errorf("Número de blocos de memória alocados deve ser maior do que 0")
	}
	if a.blockSize <= 0 {
		return fmt.Errorf("Tamanho de bloco de memória deve ser maior do que 0")
	}
	if a.blockSize > 32 {
		return fmt.Errorf("Tamanho de bloco de memória deve ser menor ou igual a 32")
	}
	workers := worldSize - 1
	if a.numBlocks < workers {
		return fmt.Errorf("Número de blocos de memória alocados deve ser maior ou igual ao número de processos trabalhadores (%d)", workers)
	}
	if a.numBlocks > 32 {
		return fmt.Errorf("Número de blocos de memória alocados deve ser menor ou igual a 32")
	}
	if a.logLevel < 0 || a.logLevel > 2 {
		return fmt.Errorf("Nível de log deve estar entre 0 e 2")
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("dsmd: %v", err)
	}
}

func run() error {
	env, err := config.LoadEnv()
	if err != nil {
		return dsmerr.New(dsmerr.Config, "main", err)
	}

	topo, err := config.LoadTopology(env.PeersFile)
	if err != nil {
		return dsmerr.New(dsmerr.Config, "main", err)
	}
	worldSize := len(topo)

	args, err := captureArgs(os.Args[1:])
	if err != nil {
		return dsmerr.New(dsmerr.Config, "main", err)
	}
	if err := validateArgs(args, worldSize); err != nil {
		return dsmerr.New(dsmerr.Config, "main", err)
	}

	reg, err := registry.New(env.Rank, worldSize, args.numBlocks, args.blockSize, args.timestamp, args.logLevel)
	if err != nil {
		return dsmerr.New(dsmerr.Config, "main", err)
	}

	lg, err := logger.New(reg.Timestamp, reg.WorldRank, logger.Level(reg.LogLevel))
	if err != nil {
		return err
	}
	defer lg.Close()
	lg.Infof("starting: rank=%d world_size=%d num_blocks=%d block_size=%d", reg.WorldRank, reg.WorldSize, reg.NumBlocks, reg.BlockSize)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tr, err := transport.Dial(ctx, reg.WorldRank, topo)
	if err != nil {
		return err
	}
	defer tr.Close()

	g, gctx := errgroup.WithContext(ctx)

	if reg.IsBroadcaster() {
		g.Go(func() error {
			if err := tr.Barrier(); err != nil {
				return err
			}
			lg.Infof("broadcaster ready")
			return broadcaster.Run(gctx, tr, reg.PollInterval, lg)
		})
	} else {
		mm := memmap.Build(reg.NumBlocks, reg.Workers())
		local := store.NewLocal(mm.KeysOf(reg.WorldRank), reg.BlockSize, tr, reg.WorldSize-1, func() int64 { return time.Now().UnixNano() })
		remote := store.NewRemote(mm.RemoteOwners(reg.NumBlocks, reg.WorldRank), reg.BlockSize, tr)
		facade := store.NewFacade(local, remote, mm, reg.WorldRank, reg.NumBlocks, reg.BlockSize)

		g.Go(func() error { return server.RunReadListener(gctx, tr, local, reg.PollInterval, lg) })
		g.Go(func() error { return server.RunWriteListener(gctx, tr, local, reg.BlockSize, reg.PollInterval, lg) })
		g.Go(func() error { return server.RunInvalidateListener(gctx, tr, local, remote, lg) })

		g.Go(func() error {
			if err := tr.Barrier(); err != nil {
				return err
			}
			lg.Infof("worker ready, owns %v", mm.KeysOf(reg.WorldRank))
			gen := workload.New(facade, reg.NumBlocks, reg.BlockSize, 100*time.Millisecond, int64(reg.WorldRank)+1, lg)
			return gen.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	lg.Infof("stopped")
	return nil
}
