// Package wire implements the fixed-layout frame encodings exchanged
// between ranks: read requests/responses, write requests, and block
// invalidation notifications. There are no length prefixes or version
// tags — every frame kind has a size that is fixed and known to both
// ends, matching the block size negotiated at startup.
package wire

import (
	"encoding/binary"
	"fmt"
)

// KeySize is the encoded width of a block key.
const KeySize = 4

// NotificationSize is the encoded width of an invalidation notification:
// a 4-byte key followed by an 8-byte timestamp.
const NotificationSize = KeySize + 8

var order = binary.LittleEndian

// EncodeKey produces a READ-REQ frame: a single signed 32-bit key.
func EncodeKey(key int) []byte {
	buf := make([]byte, KeySize)
	order.PutUint32(buf, uint32(int32(key)))
	return buf
}

// DecodeKey inverts EncodeKey. buf must be exactly KeySize bytes.
func DecodeKey(buf []byte) (int, error) {
	if len(buf) != KeySize {
		return 0, fmt.Errorf("wire: DecodeKey: want %d bytes, got %d", KeySize, len(buf))
	}
	return int(int32(order.Uint32(buf))), nil
}

// EncodeWrite produces a WRITE-REQ frame: [key][payload].
func EncodeWrite(key int, payload []byte) []byte {
	buf := make([]byte, KeySize+len(payload))
	order.PutUint32(buf, uint32(int32(key)))
	copy(buf[KeySize:], payload)
	return buf
}

// DecodeWrite inverts EncodeWrite. buf must be exactly 4+blockSize bytes;
// the returned payload aliases buf and should be copied by the caller if
// it needs to outlive the receive buffer.
func DecodeWrite(buf []byte, blockSize int) (key int, payload []byte, err error) {
	want := KeySize + blockSize
	if len(buf) != want {
		return 0, nil, fmt.Errorf("wire: DecodeWrite: want %d bytes, got %d", want, len(buf))
	}
	key = int(int32(order.Uint32(buf)))
	payload = buf[KeySize:]
	return key, payload, nil
}

// EncodeNotification produces an INVALIDATE frame: [key][timestamp].
// The timestamp is informational only and never drives ordering.
func EncodeNotification(key int, timestamp int64) []byte {
	buf := make([]byte, NotificationSize)
	order.PutUint32(buf, uint32(int32(key)))
	order.PutUint64(buf[KeySize:], uint64(timestamp))
	return buf
}

// DecodeNotification inverts EncodeNotification.
func DecodeNotification(buf []byte) (key int, timestamp int64, err error) {
	if len(buf) != NotificationSize {
		return 0, 0, fmt.Errorf("wire: DecodeNotification: want %d bytes, got %d", NotificationSize, len(buf))
	}
	key = int(int32(order.Uint32(buf)))
	timestamp = int64(order.Uint64(buf[KeySize:]))
	return key, timestamp, nil
}
