package workload

import (
	"context"
	"time"

	"testing"

	"github.com/dsmlab/dsmengine/internal/memmap"
	"github.com/dsmlab/dsmengine/internal/store"
)

type noopSubstrate struct{}

func (noopSubstrate) Send(tag uint32, dest int, payload []byte) error  { return nil }
func (noopSubstrate) Recv(tag uint32, source int) ([]byte, int, error) { return make([]byte, 4), source, nil }

func TestGeneratorRunStopsOnCancel(t *testing.T) {
	mm := memmap.Build(4, 1)
	local := store.NewLocal(mm.KeysOf(0), 4, noopSubstrate{}, 1, func() int64 { return 0 })
	remote := store.NewRemote(mm.RemoteOwners(4, 0), 4, noopSubstrate{})
	facade := store.NewFacade(local, remote, mm, 0, 4, 4)

	gen := New(facade, 4, 4, time.Millisecond, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gen.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run should return the context's cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after ctx was canceled")
	}
}
