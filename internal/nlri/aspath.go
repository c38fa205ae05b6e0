package nlri

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ASN is a 2-octet autonomous system number. spec.md's Non-goals exclude
// 4-octet ASN wire encoding; the capability may still be advertised (see
// internal/wire).
type ASN uint16

// SegmentType distinguishes an ordered AS_SEQUENCE from an unordered AS_SET
// (RFC 4271 §4.3).
type SegmentType uint8

const (
	SegSet      SegmentType = 1
	SegSequence SegmentType = 2
)

func (t SegmentType) String() string {
	switch t {
	case SegSet:
		return "AS_SET"
	case SegSequence:
		return "AS_SEQUENCE"
	default:
		return fmt.Sprintf("SegmentType(%d)", uint8(t))
	}
}

// ASPathSegment is one element of an AS_PATH attribute: a typed, ordered
// list of 2-octet ASNs.
type ASPathSegment struct {
	Type SegmentType
	ASNs []ASN
}

// ASPath is the ordered sequence of segments carried in an AS_PATH
// attribute.
type ASPath []ASPathSegment

// Length returns the AS path length used by the decision process (spec.md
// §3, §4.3): each ASN in a SEQUENCE counts individually, each SET counts as
// exactly one, regardless of its member count.
func (p ASPath) Length() int {
	n := 0
	for _, seg := range p {
		switch seg.Type {
		case SegSequence:
			n += len(seg.ASNs)
		case SegSet:
			n++
		}
	}
	return n
}

// Contains reports whether asn appears anywhere in the path, used for BGP
// loop detection (spec.md §4.3 RIB manager, "reject the route if the local
// ASN appears in the received AS_PATH").
func (p ASPath) Contains(asn ASN) bool {
	for _, seg := range p {
		for _, a := range seg.ASNs {
			if a == asn {
				return true
			}
		}
	}
	return false
}

// Prepend returns a copy of p with a new one-ASN AS_SEQUENCE segment placed
// at the front, used when announcing a route to an eBGP peer (spec.md
// §4.2.2).
func (p ASPath) Prepend(asn ASN) ASPath {
	out := make(ASPath, 0, len(p)+1)
	out = append(out, ASPathSegment{Type: SegSequence, ASNs: []ASN{asn}})
	return append(out, p...)
}

// String renders the path the way conventional BGP tooling does: bare
// numbers for AS_SEQUENCE, braces for AS_SET.
func (p ASPath) String() string {
	var segs []string
	for _, seg := range p {
		var nums []string
		for _, a := range seg.ASNs {
			nums = append(nums, strconv.Itoa(int(a)))
		}
		if seg.Type == SegSet {
			segs = append(segs, "{"+strings.Join(nums, ",")+"}")
		} else {
			segs = append(segs, strings.Join(nums, " "))
		}
	}
	return strings.Join(segs, " ")
}

// EncodeASPath produces the wire value of an AS_PATH attribute: a sequence
// of <type:u8, length:u8, ASNs...> segments, ASNs encoded as 2-octet values.
func EncodeASPath(p ASPath) []byte {
	var out []byte
	for _, seg := range p {
		out = append(out, byte(seg.Type), byte(len(seg.ASNs)))
		for _, a := range seg.ASNs {
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(a))
			out = append(out, b[:]...)
		}
	}
	return out
}

// DecodeASPath parses the value of an AS_PATH attribute.
func DecodeASPath(data []byte) (ASPath, error) {
	var path ASPath
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("nlri: AS_PATH segment header truncated")
		}
		segType := SegmentType(data[offset])
		segLen := int(data[offset+1])
		offset += 2
		need := segLen * 2
		if offset+need > len(data) {
			return nil, fmt.Errorf("nlri: AS_PATH segment truncated, need %d have %d", need, len(data)-offset)
		}
		asns := make([]ASN, segLen)
		for i := 0; i < segLen; i++ {
			asns[i] = ASN(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
		}
		path = append(path, ASPathSegment{Type: segType, ASNs: asns})
	}
	return path, nil
}
