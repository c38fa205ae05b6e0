package wire

import (
	"encoding/binary"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
)

// UpdateMessage carries changes to the sender's routing table: withdrawals,
// path attributes, and newly reachable IPv4 unicast NLRI. IPv6 (and
// multicast) reachability travels in the MP_REACH_NLRI / MP_UNREACH_NLRI
// attributes instead (RFC 4760), reachable via Attrs.
type UpdateMessage struct {
	WithdrawnRoutes []nlri.Prefix
	Attrs           []PathAttribute
	NLRI            []nlri.Prefix
}

// EncodeUpdate serializes an UpdateMessage body: withdrawn_len,
// withdrawn_routes, total_path_attribute_len, path_attributes, nlri (spec.md
// §4.1).
func EncodeUpdate(m UpdateMessage) []byte {
	var withdrawn []byte
	for _, p := range m.WithdrawnRoutes {
		withdrawn = append(withdrawn, p.Encode()...)
	}

	attrBytes := EncodeAttributes(m.Attrs)

	var out []byte
	var wl [2]byte
	binary.BigEndian.PutUint16(wl[:], uint16(len(withdrawn)))
	out = append(out, wl[:]...)
	out = append(out, withdrawn...)

	var al [2]byte
	binary.BigEndian.PutUint16(al[:], uint16(len(attrBytes)))
	out = append(out, al[:]...)
	out = append(out, attrBytes...)

	for _, p := range m.NLRI {
		out = append(out, p.Encode()...)
	}
	return out
}

// DecodeUpdate parses an UPDATE message body. IPv4 NLRI (withdrawn and
// reachable) are decoded directly from the fixed-position fields; IPv6
// reachability is left undecoded inside the MP_REACH_NLRI / MP_UNREACH_NLRI
// attribute values for the caller (internal/speaker's handleUpdate) to
// unpack with DecodeMPReach / DecodeMPUnreach.
func DecodeUpdate(body []byte) (UpdateMessage, error) {
	if len(body) < 2 {
		return UpdateMessage{}, &UpdateError{Subcode: MalformedAttributeList}
	}
	offset := 0
	withdrawnLen := int(binary.BigEndian.Uint16(body[offset : offset+2]))
	offset += 2
	if offset+withdrawnLen > len(body) {
		return UpdateMessage{}, &UpdateError{Subcode: MalformedAttributeList}
	}
	withdrawn, err := nlri.DecodePrefixList(body[offset:offset+withdrawnLen], nlri.AFIIPv4)
	if err != nil {
		return UpdateMessage{}, &UpdateError{Subcode: InvalidNetworkField}
	}
	offset += withdrawnLen

	if offset+2 > len(body) {
		return UpdateMessage{}, &UpdateError{Subcode: MalformedAttributeList}
	}
	attrLen := int(binary.BigEndian.Uint16(body[offset : offset+2]))
	offset += 2
	if offset+attrLen > len(body) {
		return UpdateMessage{}, &UpdateError{Subcode: MalformedAttributeList}
	}
	attrs, err := DecodeAttributes(body[offset : offset+attrLen])
	if err != nil {
		return UpdateMessage{}, err
	}
	offset += attrLen

	reachable, err := nlri.DecodePrefixList(body[offset:], nlri.AFIIPv4)
	if err != nil {
		return UpdateMessage{}, &UpdateError{Subcode: InvalidNetworkField}
	}

	return UpdateMessage{WithdrawnRoutes: withdrawn, Attrs: attrs, NLRI: reachable}, nil
}

// MPReachNLRI is the value of an MP_REACH_NLRI attribute (RFC 4760 §3):
// the address family, the next hop (in that family's native encoding), and
// the newly reachable prefixes.
type MPReachNLRI struct {
	AF      nlri.AF
	NextHop []byte
	NLRI    []nlri.Prefix
}

// EncodeMPReach serializes an MP_REACH_NLRI attribute value.
func EncodeMPReach(m MPReachNLRI) []byte {
	out := make([]byte, 0, 5+len(m.NextHop))
	var afi [2]byte
	binary.BigEndian.PutUint16(afi[:], uint16(m.AF.AFI))
	out = append(out, afi[:]...)
	out = append(out, byte(m.AF.SAFI))
	out = append(out, byte(len(m.NextHop)))
	out = append(out, m.NextHop...)
	out = append(out, 0) // Reserved (SNPA count, always zero here)
	for _, p := range m.NLRI {
		out = append(out, p.Encode()...)
	}
	return out
}

// DecodeMPReach parses an MP_REACH_NLRI attribute value.
func DecodeMPReach(value []byte) (MPReachNLRI, error) {
	if len(value) < 5 {
		return MPReachNLRI{}, &UpdateError{Subcode: OptionalAttributeError}
	}
	afi := nlri.AFI(binary.BigEndian.Uint16(value[0:2]))
	safi := nlri.SAFI(value[2])
	nhLen := int(value[3])
	offset := 4
	if offset+nhLen > len(value) {
		return MPReachNLRI{}, &UpdateError{Subcode: OptionalAttributeError}
	}
	nextHop := append([]byte(nil), value[offset:offset+nhLen]...)
	offset += nhLen

	if offset >= len(value) {
		return MPReachNLRI{}, &UpdateError{Subcode: OptionalAttributeError}
	}
	offset++ // skip Reserved/SNPA-count octet

	prefixes, err := nlri.DecodePrefixList(value[offset:], afi)
	if err != nil {
		return MPReachNLRI{}, &UpdateError{Subcode: InvalidNetworkField}
	}
	return MPReachNLRI{AF: nlri.AF{AFI: afi, SAFI: safi}, NextHop: nextHop, NLRI: prefixes}, nil
}

// MPUnreachNLRI is the value of an MP_UNREACH_NLRI attribute (RFC 4760 §4):
// the address family and the prefixes being withdrawn.
type MPUnreachNLRI struct {
	AF   nlri.AF
	NLRI []nlri.Prefix
}

// EncodeMPUnreach serializes an MP_UNREACH_NLRI attribute value.
func EncodeMPUnreach(m MPUnreachNLRI) []byte {
	out := make([]byte, 3)
	binary.BigEndian.PutUint16(out[0:2], uint16(m.AF.AFI))
	out[2] = byte(m.AF.SAFI)
	for _, p := range m.NLRI {
		out = append(out, p.Encode()...)
	}
	return out
}

// DecodeMPUnreach parses an MP_UNREACH_NLRI attribute value.
func DecodeMPUnreach(value []byte) (MPUnreachNLRI, error) {
	if len(value) < 3 {
		return MPUnreachNLRI{}, &UpdateError{Subcode: OptionalAttributeError}
	}
	afi := nlri.AFI(binary.BigEndian.Uint16(value[0:2]))
	safi := nlri.SAFI(value[2])
	prefixes, err := nlri.DecodePrefixList(value[3:], afi)
	if err != nil {
		return MPUnreachNLRI{}, &UpdateError{Subcode: InvalidNetworkField}
	}
	return MPUnreachNLRI{AF: nlri.AF{AFI: afi, SAFI: safi}, NLRI: prefixes}, nil
}

// MPReachAttribute wraps an MPReachNLRI as the optional, non-transitive
// MP_REACH_NLRI path attribute.
func MPReachAttribute(m MPReachNLRI) PathAttribute {
	return NewAttribute(FlagOptional, AttrMPReachNLRI, EncodeMPReach(m))
}

// MPUnreachAttribute wraps an MPUnreachNLRI as the optional, non-transitive
// MP_UNREACH_NLRI path attribute.
func MPUnreachAttribute(m MPUnreachNLRI) PathAttribute {
	return NewAttribute(FlagOptional, AttrMPUnreachNLRI, EncodeMPUnreach(m))
}
