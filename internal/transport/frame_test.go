package transport

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	f := frame{kind: kindTagged, tag: 103, payload: []byte{1, 2, 3, 4}}
	got, err := decodeFrame(encodeFrame(f))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if got.kind != f.kind || got.tag != f.tag || !bytes.Equal(got.payload, f.payload) {
		t.Fatalf("round trip = %+v, want %+v", got, f)
	}
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	f := frame{kind: kindBarrierJoin}
	got, err := decodeFrame(encodeFrame(f))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if got.kind != kindBarrierJoin || len(got.payload) != 0 {
		t.Fatalf("round trip = %+v, want empty kindBarrierJoin", got)
	}
}

func TestDecodeFrameRejectsLengthMismatch(t *testing.T) {
	buf := encodeFrame(frame{kind: kindTagged, tag: 1, payload: []byte{1, 2}})
	buf = append(buf, 0xFF) // trailing garbage the header length doesn't account for
	if _, err := decodeFrame(buf); err == nil {
		t.Fatal("expected error for a frame whose header length disagrees with its body")
	}
}

func TestTagQueueProbeIsNonDestructive(t *testing.T) {
	q := newTagQueue()
	q.push(inbound{source: 2, payload: []byte("x")})

	ok, from := q.probe(AnySource)
	if !ok || from != 2 {
		t.Fatalf("probe = (%v, %d), want (true, 2)", ok, from)
	}
	// probing again must not consume the message
	ok, from = q.probe(AnySource)
	if !ok || from != 2 {
		t.Fatalf("second probe = (%v, %d), want (true, 2)", ok, from)
	}

	payload, src, err := q.recv(context.Background(), AnySource)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if src != 2 || string(payload) != "x" {
		t.Fatalf("recv = (%q, %d), want (\"x\", 2)", payload, src)
	}

	ok, _ = q.probe(AnySource)
	if ok {
		t.Fatal("queue should be empty after recv consumed the only item")
	}
}

func TestTagQueueRecvBlocksUntilPush(t *testing.T) {
	q := newTagQueue()
	done := make(chan []byte, 1)
	go func() {
		payload, _, err := q.recv(context.Background(), AnySource)
		if err != nil {
			t.Error(err)
			return
		}
		done <- payload
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("recv returned before any message was pushed")
	default:
	}

	q.push(inbound{source: 1, payload: []byte("y")})
	select {
	case got := <-done:
		if string(got) != "y" {
			t.Fatalf("recv = %q, want \"y\"", got)
		}
	case <-time.After(time.Second):
		t.Fatal("recv did not return after push")
	}
}

func TestTagQueueRecvRespectsSource(t *testing.T) {
	q := newTagQueue()
	q.push(inbound{source: 9, payload: []byte("wrong")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := q.recv(ctx, 2); err == nil {
		t.Fatal("expected a timeout waiting for a message from a different source")
	}
}
