// Package nlri implements the typed prefix and AS path model used by the
// BGP-4 wire codec and RIB: Address Families, NLRI prefixes (RFC 4271 §3,
// RFC 4760), and AS_PATH segments (RFC 4271 §4.3).
package nlri

import "fmt"

// AFI is an Address Family Identifier (RFC 4760 §5).
type AFI uint16

// AFI values this speaker understands.
const (
	AFIIPv4 AFI = 1
	AFIIPv6 AFI = 2
)

func (a AFI) String() string {
	switch a {
	case AFIIPv4:
		return "IPv4"
	case AFIIPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("AFI(%d)", uint16(a))
	}
}

// SAFI is a Subsequent Address Family Identifier (RFC 4760 §5).
type SAFI uint8

// SAFI values this speaker understands.
const (
	SAFIUnicast   SAFI = 1
	SAFIMulticast SAFI = 2
)

func (s SAFI) String() string {
	switch s {
	case SAFIUnicast:
		return "unicast"
	case SAFIMulticast:
		return "multicast"
	default:
		return fmt.Sprintf("SAFI(%d)", uint8(s))
	}
}

// AF pairs an AFI and SAFI and selects one routing table. It is used as a
// map key, so it must remain comparable.
type AF struct {
	AFI  AFI
	SAFI SAFI
}

func (af AF) String() string {
	return fmt.Sprintf("%s/%s", af.AFI, af.SAFI)
}

// Supported reports whether this speaker carries a RIB for af. Only
// (IPv4,unicast|multicast) and (IPv6,unicast|multicast) are accepted in MP
// attributes (spec.md §6).
func (af AF) Supported() bool {
	switch af.AFI {
	case AFIIPv4, AFIIPv6:
	default:
		return false
	}
	switch af.SAFI {
	case SAFIUnicast, SAFIMulticast:
	default:
		return false
	}
	return true
}

// MaxBits returns the address width in bits for afi, or 0 if unrecognized.
func (afi AFI) MaxBits() int {
	switch afi {
	case AFIIPv4:
		return 32
	case AFIIPv6:
		return 128
	default:
		return 0
	}
}
