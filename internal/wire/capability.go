package wire

import (
	"encoding/binary"
	"fmt"
)

// CapabilityCode identifies an OPEN message optional capability (RFC 5492).
type CapabilityCode uint8

const (
	CapMultiprotocol           CapabilityCode = 1
	CapRouteRefresh            CapabilityCode = 2
	CapOutboundRouteFiltering  CapabilityCode = 3
	CapExtendedNextHopEncoding CapabilityCode = 5
	CapGracefulRestart         CapabilityCode = 64
	CapFourOctetASN            CapabilityCode = 65
)

// Capability is one TLV inside a Capabilities optional parameter. Value is
// kept raw so unknown capabilities survive a decode/encode round trip
// unchanged, matching the attribute codec's unknown-preservation rule.
type Capability struct {
	Code  CapabilityCode
	Value []byte
}

// MultiprotocolValue is the 4-octet value of a Multiprotocol Extensions
// capability: AFI, a reserved octet, then SAFI.
type MultiprotocolValue struct {
	AFI  uint16
	SAFI uint8
}

// MultiprotocolCapability builds a Multiprotocol Extensions capability for
// the given address family (RFC 4760 §8).
func MultiprotocolCapability(afi uint16, safi uint8) Capability {
	return Capability{
		Code:  CapMultiprotocol,
		Value: []byte{byte(afi >> 8), byte(afi), 0, safi},
	}
}

// DecodeMultiprotocol parses a Multiprotocol Extensions capability value.
func DecodeMultiprotocol(value []byte) (MultiprotocolValue, error) {
	if len(value) != 4 {
		return MultiprotocolValue{}, fmt.Errorf("wire: multiprotocol capability length %d, want 4", len(value))
	}
	return MultiprotocolValue{
		AFI:  binary.BigEndian.Uint16(value[0:2]),
		SAFI: value[3],
	}, nil
}

// encodeCapabilities wraps each capability as a TLV and returns them
// concatenated, ready to be wrapped in a Capabilities optional parameter.
func encodeCapabilities(caps []Capability) []byte {
	var out []byte
	for _, c := range caps {
		out = append(out, byte(c.Code), byte(len(c.Value)))
		out = append(out, c.Value...)
	}
	return out
}

// decodeCapabilities parses the value of a Capabilities optional parameter
// (RFC 5492 §4), a packed sequence of <code:u8, length:u8, value...> TLVs.
func decodeCapabilities(data []byte) ([]Capability, error) {
	var caps []Capability
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, &OpenError{Subcode: UnsupportedOptionalParameter}
		}
		code := CapabilityCode(data[offset])
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return nil, &OpenError{Subcode: UnsupportedOptionalParameter}
		}
		caps = append(caps, Capability{Code: code, Value: append([]byte(nil), data[offset:offset+length]...)})
		offset += length
	}
	return caps, nil
}
