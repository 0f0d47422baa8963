package broadcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dsmlab/dsmengine/internal/transport"
	"github.com/dsmlab/dsmengine/internal/wire"
)

type fakeSubstrate struct {
	mu        sync.Mutex
	queue     []queued
	broadcast [][]byte
	rank      int
}

type queued struct {
	payload []byte
	source  int
}

func (f *fakeSubstrate) Rank() int { return f.rank }

func (f *fakeSubstrate) Probe(tag uint32) (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tag != transport.TagInvalidate || len(f.queue) == 0 {
		return false, 0
	}
	return true, f.queue[0].source
}

func (f *fakeSubstrate) Recv(tag uint32, source int) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.queue[0]
	f.queue = f.queue[1:]
	return item.payload, item.source, nil
}

func (f *fakeSubstrate) Broadcast(root int, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, payload)
	return nil
}

func TestRunReBroadcastsEveryInvalidation(t *testing.T) {
	sub := &fakeSubstrate{rank: 3}
	sub.queue = []queued{{payload: wire.EncodeNotification(5, 0), source: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, sub, time.Millisecond, nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.broadcast) != 1 {
		t.Fatalf("expected exactly one re-broadcast, got %d", len(sub.broadcast))
	}
	key, _, err := wire.DecodeNotification(sub.broadcast[0])
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	if key != 5 {
		t.Fatalf("re-broadcast key = %d, want 5", key)
	}
}
