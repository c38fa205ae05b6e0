// Package wire implements the BGP-4 message codec: framing and bit-exact
// (de)serialization of OPEN, UPDATE, KEEPALIVE, and NOTIFICATION messages,
// including path attributes and capability negotiation (spec.md §4.1).
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MarkerLen is the length in octets of the BGP message marker.
const MarkerLen = 16

// MinMessageLen and MaxMessageLen bound the total length field, including
// the header itself (spec.md §4.1 "Framing").
const (
	MinMessageLen = 19
	MaxMessageLen = 4096
)

// MsgType identifies the body that follows the header.
type MsgType uint8

const (
	MsgOpen         MsgType = 1
	MsgUpdate       MsgType = 2
	MsgNotification MsgType = 3
	MsgKeepalive    MsgType = 4
)

func (t MsgType) String() string {
	switch t {
	case MsgOpen:
		return "OPEN"
	case MsgUpdate:
		return "UPDATE"
	case MsgNotification:
		return "NOTIFICATION"
	case MsgKeepalive:
		return "KEEPALIVE"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// ErrNeedMore is returned by Decode when the buffer does not yet contain a
// complete frame. Callers should read more bytes from the socket and retry.
var ErrNeedMore = errors.New("wire: need more bytes")

// marker is the 16 all-ones octets every message begins with.
var marker = bytes.Repeat([]byte{0xFF}, MarkerLen)

// Frame is one decoded, still-unparsed message: its type and body (the
// bytes following the 19-octet header).
type Frame struct {
	Type MsgType
	Body []byte
}

// Decode extracts the next complete frame from the front of buf. It returns
// ErrNeedMore if fewer than 19 bytes are buffered, or fewer than the
// declared length. On success it returns the number of bytes consumed from
// buf so the caller can advance its read buffer.
//
// Failures map directly onto spec.md §7's Message Header Error taxonomy:
// a bad marker is ConnectionNotSynchronized, a bad length is
// BadMessageLength.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < MinMessageLen {
		return Frame{}, 0, ErrNeedMore
	}
	if !bytes.Equal(buf[:MarkerLen], marker) {
		return Frame{}, 0, &HeaderError{Subcode: ConnectionNotSynchronized}
	}
	length := int(binary.BigEndian.Uint16(buf[MarkerLen : MarkerLen+2]))
	if length < MinMessageLen || length > MaxMessageLen {
		return Frame{}, 0, &HeaderError{Subcode: BadMessageLength, Data: buf[MarkerLen : MarkerLen+2]}
	}
	if len(buf) < length {
		return Frame{}, 0, ErrNeedMore
	}
	msgType := MsgType(buf[MarkerLen+2])
	switch msgType {
	case MsgOpen, MsgUpdate, MsgNotification, MsgKeepalive:
	default:
		return Frame{}, 0, &HeaderError{Subcode: BadMessageType, Data: []byte{byte(msgType)}}
	}
	body := buf[MinMessageLen:length]
	return Frame{Type: msgType, Body: body}, length, nil
}

// EncodeFrame writes marker, length, type, and body as one contiguous
// frame. It fails if the resulting frame would exceed MaxMessageLen.
func EncodeFrame(t MsgType, body []byte) ([]byte, error) {
	total := MinMessageLen + len(body)
	if total > MaxMessageLen {
		return nil, fmt.Errorf("wire: encoded %s message length %d exceeds maximum %d", t, total, MaxMessageLen)
	}
	out := make([]byte, 0, total)
	out = append(out, marker...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(total))
	out = append(out, lenBuf[:]...)
	out = append(out, byte(t))
	out = append(out, body...)
	return out, nil
}
