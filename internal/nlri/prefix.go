package nlri

import (
	"fmt"
	"net/netip"
)

// Prefix is a single NLRI: an IPv4 or IPv6 CIDR with all host bits beyond
// the prefix length zeroed (spec.md §3, "Prefix / NLRI" invariant).
type Prefix struct {
	netip.Prefix
}

// PrefixFromNetip zeroes p's host bits and returns the resulting Prefix.
func PrefixFromNetip(p netip.Prefix) Prefix {
	return Prefix{p.Masked()}
}

// MustParsePrefix parses s (e.g. "10.0.0.0/24") and masks it. Panics on a
// malformed literal; intended for tests and constant tables.
func MustParsePrefix(s string) Prefix {
	p := netip.MustParsePrefix(s)
	return PrefixFromNetip(p)
}

// AFI returns the address family of this prefix.
func (p Prefix) AFI() AFI {
	if p.Addr().Is4() {
		return AFIIPv4
	}
	return AFIIPv6
}

// byteLen is the wire length of the network-address portion: ceil(plen/8).
func byteLen(bits int) int {
	return (bits + 7) / 8
}

// Encode writes the wire form of p: a one-octet prefix length followed by
// ceil(plen/8) bytes of the network address, high-order byte first (spec.md
// §4.1 "NLRI encoding"). Trailing bits beyond plen are always zero because
// Prefix values are kept masked.
func (p Prefix) Encode() []byte {
	bits := p.Bits()
	addrBytes := addrBytes(p.Addr())
	n := byteLen(bits)
	out := make([]byte, 1+n)
	out[0] = byte(bits)
	copy(out[1:], addrBytes[:n])
	return out
}

func addrBytes(addr netip.Addr) []byte {
	if addr.Is4() {
		a := addr.As4()
		return a[:]
	}
	a := addr.As16()
	return a[:]
}

// DecodePrefix reads one NLRI entry for the given address family from data,
// returning the prefix and the number of bytes consumed. Bits beyond the
// encoded prefix length are masked to zero, per spec.md §4.1.
func DecodePrefix(data []byte, afi AFI) (Prefix, int, error) {
	if len(data) < 1 {
		return Prefix{}, 0, fmt.Errorf("nlri: truncated prefix length")
	}
	bits := int(data[0])
	maxBits := afi.MaxBits()
	if maxBits == 0 {
		return Prefix{}, 0, fmt.Errorf("nlri: unsupported AFI %d", afi)
	}
	if bits > maxBits {
		return Prefix{}, 0, fmt.Errorf("nlri: prefix length %d exceeds %d bits for %s", bits, maxBits, afi)
	}
	n := byteLen(bits)
	if len(data) < 1+n {
		return Prefix{}, 0, fmt.Errorf("nlri: truncated prefix data, need %d have %d", n, len(data)-1)
	}
	raw := make([]byte, maxBits/8)
	copy(raw, data[1:1+n])

	var addr netip.Addr
	if maxBits == 32 {
		var a4 [4]byte
		copy(a4[:], raw)
		addr = netip.AddrFrom4(a4)
	} else {
		var a16 [16]byte
		copy(a16[:], raw)
		addr = netip.AddrFrom16(a16)
	}

	pfx, err := addr.Prefix(bits)
	if err != nil {
		return Prefix{}, 0, fmt.Errorf("nlri: %w", err)
	}
	return Prefix{pfx.Masked()}, 1 + n, nil
}

// DecodePrefixList decodes a run of consecutive NLRI entries from data until
// it is fully consumed.
func DecodePrefixList(data []byte, afi AFI) ([]Prefix, error) {
	var out []Prefix
	for len(data) > 0 {
		p, n, err := DecodePrefix(data, afi)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
		data = data[n:]
	}
	return out, nil
}
