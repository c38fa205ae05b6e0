package wire

import (
	"encoding/binary"
	"net/netip"
)

const (
	// Version is the only BGP version this speaker implements.
	Version = 4

	optParamCapabilities byte = 2
)

// OpenMessage is the first message each side of a BGP connection sends
// after the transport connection comes up (spec.md §4.1, §4.2).
type OpenMessage struct {
	Version  uint8
	ASN      uint16
	HoldTime uint16
	RouterID netip.Addr // always a 4-octet (IPv4-form) identifier
	Caps     []Capability
}

// EncodeOpen serializes an OpenMessage body. All negotiated capabilities
// are carried in a single optional parameter of type Capabilities (RFC
// 5492), matching how every modern implementation packs them.
func EncodeOpen(m OpenMessage) []byte {
	out := make([]byte, 10)
	out[0] = m.Version
	binary.BigEndian.PutUint16(out[1:3], m.ASN)
	binary.BigEndian.PutUint16(out[3:5], m.HoldTime)
	rid := m.RouterID.As4()
	copy(out[5:9], rid[:])

	var optParams []byte
	if len(m.Caps) > 0 {
		capBytes := encodeCapabilities(m.Caps)
		optParams = append(optParams, optParamCapabilities, byte(len(capBytes)))
		optParams = append(optParams, capBytes...)
	}
	out[9] = byte(len(optParams))
	return append(out, optParams...)
}

// DecodeOpen parses an OPEN message body.
func DecodeOpen(body []byte) (OpenMessage, error) {
	if len(body) < 10 {
		return OpenMessage{}, &OpenError{Subcode: 0}
	}
	m := OpenMessage{
		Version:  body[0],
		ASN:      binary.BigEndian.Uint16(body[1:3]),
		HoldTime: binary.BigEndian.Uint16(body[3:5]),
	}
	if m.Version != Version {
		return OpenMessage{}, &OpenError{Subcode: UnsupportedVersionNumber, Data: []byte{body[0]}}
	}
	var rid [4]byte
	copy(rid[:], body[5:9])
	m.RouterID = netip.AddrFrom4(rid)

	paramsLen := int(body[9])
	if 10+paramsLen > len(body) {
		return OpenMessage{}, &OpenError{Subcode: UnsupportedOptionalParameter}
	}
	params := body[10 : 10+paramsLen]

	offset := 0
	for offset < len(params) {
		if offset+2 > len(params) {
			return OpenMessage{}, &OpenError{Subcode: UnsupportedOptionalParameter}
		}
		paramType := params[offset]
		paramLen := int(params[offset+1])
		offset += 2
		if offset+paramLen > len(params) {
			return OpenMessage{}, &OpenError{Subcode: UnsupportedOptionalParameter}
		}
		value := params[offset : offset+paramLen]
		offset += paramLen

		if paramType == optParamCapabilities {
			caps, err := decodeCapabilities(value)
			if err != nil {
				return OpenMessage{}, err
			}
			m.Caps = append(m.Caps, caps...)
			continue
		}
		// Unrecognized optional parameter types other than capabilities are
		// not used by this speaker; reject rather than silently drop, since
		// the peer presumably requires it to be understood.
		return OpenMessage{}, &OpenError{Subcode: UnsupportedOptionalParameter, Data: []byte{paramType}}
	}
	return m, nil
}

// HasCapability reports whether m advertises a capability with the given
// code.
func (m OpenMessage) HasCapability(code CapabilityCode) bool {
	for _, c := range m.Caps {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Capability returns the first capability with the given code.
func (m OpenMessage) Capability(code CapabilityCode) (Capability, bool) {
	for _, c := range m.Caps {
		if c.Code == code {
			return c, true
		}
	}
	return Capability{}, false
}
