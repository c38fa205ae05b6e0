package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
)

// AttrFlag bits, high-order first within the flags octet (RFC 4271 §4.3).
type AttrFlag byte

const (
	FlagOptional       AttrFlag = 1 << 7
	FlagTransitive     AttrFlag = 1 << 6
	FlagPartial        AttrFlag = 1 << 5
	FlagExtendedLength AttrFlag = 1 << 4
)

// AttrCode is a path attribute type code (RFC 4271 §5, RFC 4760 §3).
type AttrCode uint8

const (
	AttrOrigin          AttrCode = 1
	AttrASPath          AttrCode = 2
	AttrNextHop         AttrCode = 3
	AttrMED             AttrCode = 4
	AttrLocalPref       AttrCode = 5
	AttrAtomicAggregate AttrCode = 6
	AttrAggregator      AttrCode = 7
	AttrCommunities     AttrCode = 8
	AttrOriginatorID    AttrCode = 9
	AttrClusterList     AttrCode = 10
	AttrMPReachNLRI     AttrCode = 14
	AttrMPUnreachNLRI   AttrCode = 15
	AttrExtCommunities  AttrCode = 16
)

// wellKnown lists attribute codes that spec.md requires be non-optional and
// transitive; a decoded attribute of one of these codes with the Optional
// bit set is a flags error, and an UPDATE missing one entirely is a missing
// well-known-attribute error.
var wellKnown = map[AttrCode]bool{
	AttrOrigin:  true,
	AttrASPath:  true,
	AttrNextHop: true,
}

// PathAttribute is a single path-attribute TLV: flags, type code, and its
// raw encoded value. Keeping Value as the verbatim wire bytes guarantees
// decode(encode(m)) == m for every attribute, known or not (spec.md §8
// "Codec round-trip"); typed accessors below parse Value on demand for
// attributes the speaker interprets.
type PathAttribute struct {
	Flags AttrFlag
	Code  AttrCode
	Value []byte
}

func (a PathAttribute) Optional() bool       { return a.Flags&FlagOptional != 0 }
func (a PathAttribute) Transitive() bool     { return a.Flags&FlagTransitive != 0 }
func (a PathAttribute) Partial() bool        { return a.Flags&FlagPartial != 0 }
func (a PathAttribute) ExtendedLength() bool { return a.Flags&FlagExtendedLength != 0 }

// WithPartial returns a copy of a with the partial bit set, used when an
// unrecognized optional transitive attribute transits this speaker
// (spec.md §4.1).
func (a PathAttribute) WithPartial() PathAttribute {
	a.Flags |= FlagPartial
	return a
}

// OriginCode is the value of an ORIGIN attribute.
type OriginCode byte

const (
	OriginIGP        OriginCode = 0
	OriginEGP        OriginCode = 1
	OriginIncomplete OriginCode = 2
)

func (o OriginCode) String() string {
	switch o {
	case OriginIGP:
		return "IGP"
	case OriginEGP:
		return "EGP"
	case OriginIncomplete:
		return "INCOMPLETE"
	default:
		return fmt.Sprintf("Origin(%d)", byte(o))
	}
}

// NewAttribute builds a PathAttribute, deriving the extended-length flag
// from the encoded value length as spec.md §4.1 requires ("need not be
// stored redundantly").
func NewAttribute(flags AttrFlag, code AttrCode, value []byte) PathAttribute {
	flags &^= FlagExtendedLength
	if len(value) > 255 {
		flags |= FlagExtendedLength
	}
	return PathAttribute{Flags: flags, Code: code, Value: value}
}

// OriginAttribute builds the well-known, non-optional, transitive ORIGIN
// attribute.
func OriginAttribute(o OriginCode) PathAttribute {
	return NewAttribute(FlagTransitive, AttrOrigin, []byte{byte(o)})
}

// ASPathAttribute builds the well-known, non-optional, transitive AS_PATH
// attribute.
func ASPathAttribute(p nlri.ASPath) PathAttribute {
	return NewAttribute(FlagTransitive, AttrASPath, nlri.EncodeASPath(p))
}

// NextHopAttribute builds the well-known, non-optional, transitive
// NEXT_HOP attribute. Only valid for IPv4 next hops; IPv6 next hops travel
// inside MP_REACH_NLRI instead (RFC 4760).
func NextHopAttribute(addr [4]byte) PathAttribute {
	return NewAttribute(FlagTransitive, AttrNextHop, addr[:])
}

// MEDAttribute builds the optional, non-transitive MULTI_EXIT_DISC
// attribute.
func MEDAttribute(med uint32) PathAttribute {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], med)
	return NewAttribute(FlagOptional, AttrMED, v[:])
}

// LocalPrefAttribute builds the well-known, non-optional, transitive
// LOCAL_PREF attribute (only sent between iBGP peers, RFC 4271 §5.1.5).
func LocalPrefAttribute(pref uint32) PathAttribute {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], pref)
	return NewAttribute(FlagTransitive, AttrLocalPref, v[:])
}

// ParseOrigin reads an ORIGIN attribute's value.
func ParseOrigin(value []byte) (OriginCode, error) {
	if len(value) != 1 {
		return 0, &UpdateError{Subcode: InvalidOriginAttribute}
	}
	o := OriginCode(value[0])
	switch o {
	case OriginIGP, OriginEGP, OriginIncomplete:
		return o, nil
	default:
		return 0, &UpdateError{Subcode: InvalidOriginAttribute, Data: value}
	}
}

// ParseNextHop reads a NEXT_HOP attribute's value as an IPv4 address.
func ParseNextHop(value []byte) ([4]byte, error) {
	var out [4]byte
	if len(value) != 4 {
		return out, &UpdateError{Subcode: InvalidNextHopAttribute}
	}
	copy(out[:], value)
	return out, nil
}

// ParseUint32 reads a 4-octet MED or LOCAL_PREF value.
func ParseUint32(value []byte) (uint32, error) {
	if len(value) != 4 {
		return 0, &UpdateError{Subcode: AttributeLengthError}
	}
	return binary.BigEndian.Uint32(value), nil
}

// EncodeAttribute serializes one attribute TLV: flags, type, a one- or
// two-octet length depending on the extended-length flag, then the value.
func EncodeAttribute(a PathAttribute) []byte {
	out := make([]byte, 0, 4+len(a.Value))
	out = append(out, byte(a.Flags), byte(a.Code))
	if a.ExtendedLength() {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(a.Value)))
		out = append(out, l[:]...)
	} else {
		out = append(out, byte(len(a.Value)))
	}
	return append(out, a.Value...)
}

// EncodeAttributes serializes an ordered list of attributes, concatenating
// their TLVs.
func EncodeAttributes(attrs []PathAttribute) []byte {
	var out []byte
	for _, a := range attrs {
		out = append(out, EncodeAttribute(a)...)
	}
	return out
}

// DecodeAttributes parses the path-attribute section of an UPDATE message.
// Every attribute, known or not, is preserved verbatim including its
// partial bit exactly as received (spec.md §8 "encode(decode(f)) == f");
// the partial bit is only ever set afterward, when an unknown optional
// transitive attribute is re-advertised (spec.md §4.1), not during decode.
// An unrecognized well-known (non-optional) attribute is a decode error.
func DecodeAttributes(data []byte) ([]PathAttribute, error) {
	var attrs []PathAttribute
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, &UpdateError{Subcode: MalformedAttributeList}
		}
		flags := AttrFlag(data[offset])
		code := AttrCode(data[offset+1])
		offset += 2

		var length int
		if flags&FlagExtendedLength != 0 {
			if offset+2 > len(data) {
				return nil, &UpdateError{Subcode: MalformedAttributeList}
			}
			length = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
		} else {
			if offset+1 > len(data) {
				return nil, &UpdateError{Subcode: MalformedAttributeList}
			}
			length = int(data[offset])
			offset++
		}
		if offset+length > len(data) {
			return nil, &UpdateError{Subcode: AttributeLengthError}
		}
		value := data[offset : offset+length]
		offset += length

		attr := PathAttribute{Flags: flags, Code: code, Value: append([]byte(nil), value...)}

		if wellKnown[code] && attr.Optional() {
			return nil, &UpdateError{Subcode: AttributeFlagsError, Data: []byte{byte(code)}}
		}
		if !wellKnown[code] && !attr.Optional() {
			// Unrecognized, non-optional: this is a well-known attribute we
			// don't implement, which RFC 4271 treats as unrecognized
			// well-known.
			if !isKnown(code) {
				return nil, &UpdateError{Subcode: UnrecognizedWellKnownAttribute, Data: []byte{byte(code)}}
			}
		}
		if !isKnown(code) && attr.Optional() && !attr.Transitive() {
			// Quietly ignored per spec.md, but still returned for the
			// caller to decide; RIB construction skips it.
		}

		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// IsKnownAttribute reports whether code is one this speaker recognizes
// (whether or not it builds a typed accessor for it), used by callers
// outside this package that need to separate unknown attributes from known
// ones, e.g. to decide what to carry through on re-advertisement.
func IsKnownAttribute(code AttrCode) bool { return isKnown(code) }

func isKnown(code AttrCode) bool {
	switch code {
	case AttrOrigin, AttrASPath, AttrNextHop, AttrMED, AttrLocalPref,
		AttrAtomicAggregate, AttrAggregator, AttrCommunities, AttrOriginatorID,
		AttrClusterList, AttrMPReachNLRI, AttrMPUnreachNLRI, AttrExtCommunities:
		return true
	default:
		return false
	}
}

// Find returns the first attribute with the given code, if present.
func Find(attrs []PathAttribute, code AttrCode) (PathAttribute, bool) {
	for _, a := range attrs {
		if a.Code == code {
			return a, true
		}
	}
	return PathAttribute{}, false
}
