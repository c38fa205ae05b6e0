package wire

import (
	"bytes"
	"testing"
)

func TestDecodeNeedsMoreBytes(t *testing.T) {
	if _, _, err := Decode(nil); err != ErrNeedMore {
		t.Errorf("empty buffer: expected ErrNeedMore, got %v", err)
	}
	if _, _, err := Decode(make([]byte, MinMessageLen-1)); err != ErrNeedMore {
		t.Errorf("18-byte buffer: expected ErrNeedMore, got %v", err)
	}

	frame, err := EncodeFrame(MsgKeepalive, nil)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if _, _, err := Decode(frame[:MinMessageLen-1]); err != ErrNeedMore {
		t.Errorf("truncated complete frame: expected ErrNeedMore, got %v", err)
	}
}

func TestDecodeBadMarker(t *testing.T) {
	frame, err := EncodeFrame(MsgKeepalive, nil)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	frame[0] = 0x00
	_, _, err = Decode(frame)
	he, ok := err.(*HeaderError)
	if !ok || he.Subcode != ConnectionNotSynchronized {
		t.Errorf("bad marker: expected HeaderError{ConnectionNotSynchronized}, got %v", err)
	}
}

func TestDecodeBadLength(t *testing.T) {
	frame, err := EncodeFrame(MsgKeepalive, nil)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	frame[MarkerLen] = 0
	frame[MarkerLen+1] = 5 // below MinMessageLen
	_, _, err = Decode(frame)
	he, ok := err.(*HeaderError)
	if !ok || he.Subcode != BadMessageLength {
		t.Errorf("length 5: expected HeaderError{BadMessageLength}, got %v", err)
	}

	frame2, err := EncodeFrame(MsgKeepalive, nil)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	frame2[MarkerLen] = 0xFF
	frame2[MarkerLen+1] = 0xFF // far above MaxMessageLen
	_, _, err = Decode(frame2)
	he, ok = err.(*HeaderError)
	if !ok || he.Subcode != BadMessageLength {
		t.Errorf("oversized length: expected HeaderError{BadMessageLength}, got %v", err)
	}
}

// TestEncodeFrameDecodeFrameRoundTrip checks encode(decode(f)) == f for a
// handful of message types (spec.md §8 "Codec round-trip").
func TestEncodeFrameDecodeFrameRoundTrip(t *testing.T) {
	bodies := []struct {
		typ  MsgType
		body []byte
	}{
		{MsgKeepalive, nil},
		{MsgOpen, EncodeOpen(OpenMessage{Version: Version, ASN: 65000, HoldTime: 90, RouterID: mustAddr("1.1.1.1")})},
		{MsgNotification, EncodeNotification(NotificationMessage{Code: CeaseError, Subcode: 0})},
	}
	for _, b := range bodies {
		frame, err := EncodeFrame(b.typ, b.body)
		if err != nil {
			t.Fatalf("encode %s: %v", b.typ, err)
		}
		decoded, consumed, err := Decode(frame)
		if err != nil {
			t.Fatalf("decode %s: %v", b.typ, err)
		}
		if consumed != len(frame) {
			t.Errorf("%s: consumed %d, want %d", b.typ, consumed, len(frame))
		}
		reEncoded, err := EncodeFrame(decoded.Type, decoded.Body)
		if err != nil {
			t.Fatalf("re-encode %s: %v", b.typ, err)
		}
		if !bytes.Equal(reEncoded, frame) {
			t.Errorf("%s: encode(decode(f)) != f\n got  %x\n want %x", b.typ, reEncoded, frame)
		}
	}
}

func TestEncodeFrameRejectsOversizedBody(t *testing.T) {
	_, err := EncodeFrame(MsgUpdate, make([]byte, MaxMessageLen))
	if err == nil {
		t.Errorf("expected an error encoding a body that would exceed MaxMessageLen")
	}
}
