package wire

import (
	"bytes"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	for _, k := range []int{0, 1, 31, 1 << 20} {
		got, err := DecodeKey(EncodeKey(k))
		if err != nil {
			t.Fatalf("DecodeKey(%d): %v", k, err)
		}
		if got != k {
			t.Fatalf("round trip: got %d, want %d", got, k)
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	buf := EncodeWrite(7, payload)
	if len(buf) != KeySize+len(payload) {
		t.Fatalf("encoded length = %d, want %d", len(buf), KeySize+len(payload))
	}
	key, got, err := DecodeWrite(buf, len(payload))
	if err != nil {
		t.Fatalf("DecodeWrite: %v", err)
	}
	if key != 7 {
		t.Fatalf("key = %d, want 7", key)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %v, want %v", got, payload)
	}
}

func TestDecodeWriteWrongLength(t *testing.T) {
	if _, _, err := DecodeWrite(make([]byte, 3), 4); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	buf := EncodeNotification(42, 1234567890)
	if len(buf) != NotificationSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), NotificationSize)
	}
	key, ts, err := DecodeNotification(buf)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	if key != 42 || ts != 1234567890 {
		t.Fatalf("got (%d, %d), want (42, 1234567890)", key, ts)
	}
}

func TestDecodeNotificationWrongLength(t *testing.T) {
	if _, _, err := DecodeNotification(make([]byte, NotificationSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
