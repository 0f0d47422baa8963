package transport

import (
	"encoding/binary"
	"fmt"
)

// frameKind distinguishes the four kinds of traffic multiplexed over a
// single connection between two ranks.
type frameKind byte

const (
	kindHello          frameKind = 0 // handshake: "I am rank N"
	kindTagged         frameKind = 1 // point-to-point send/recv, carries a tag
	kindBroadcast      frameKind = 2 // group broadcast payload, rooted at a rank
	kindBarrierJoin    frameKind = 3 // worker -> coordinator: I have reached the barrier
	kindBarrierRelease frameKind = 4 // coordinator -> worker: everyone has arrived
)

// frame is the on-wire envelope: [kind byte][tag uint32][len uint32][payload].
// tag is meaningful only for kindTagged; it is zero otherwise.
type frame struct {
	kind    frameKind
	tag     uint32
	payload []byte
}

const frameHeaderSize = 1 + 4 + 4

func encodeFrame(f frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.payload))
	buf[0] = byte(f.kind)
	order.PutUint32(buf[1:5], f.tag)
	order.PutUint32(buf[5:9], uint32(len(f.payload)))
	copy(buf[frameHeaderSize:], f.payload)
	return buf
}

func decodeFrame(buf []byte) (frame, error) {
	if len(buf) < frameHeaderSize {
		return frame{}, fmt.Errorf("transport: short frame: %d bytes", len(buf))
	}
	n := order.Uint32(buf[5:9])
	if int(n) != len(buf)-frameHeaderSize {
		return frame{}, fmt.Errorf("transport: frame length mismatch: header says %d, got %d", n, len(buf)-frameHeaderSize)
	}
	return frame{
		kind:    frameKind(buf[0]),
		tag:     order.Uint32(buf[1:5]),
		payload: buf[frameHeaderSize:],
	}, nil
}

var order = binary.LittleEndian
