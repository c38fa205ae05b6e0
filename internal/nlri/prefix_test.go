package nlri

import (
	"net/netip"
	"testing"
)

// TestPrefixEncodedLength checks spec.md §8's NLRI shape property: the
// encoded length always equals 1 + ceil(plen/8).
func TestPrefixEncodedLength(t *testing.T) {
	cases := []struct {
		prefix   string
		wantLen  int
	}{
		{"1.2.3.4/32", 5},
		{"1.2.3.0/25", 5},
		{"1.2.3.0/24", 4},
		{"1.2.0.0/16", 3},
		{"1.0.0.0/8", 2},
		{"1.2.3.4/1", 2},
		{"0.0.0.0/0", 1},
		{"2001:db8::/32", 5},
		{"2001:db8::/128", 17},
	}
	for _, c := range cases {
		p := MustParsePrefix(c.prefix)
		got := len(p.Encode())
		if got != c.wantLen {
			t.Errorf("%s: Encode() length = %d, want %d", c.prefix, got, c.wantLen)
		}
	}
}

// TestPrefixHostBitsZeroedAfterRoundTrip checks that a prefix with nonzero
// host bits is masked on construction and stays masked through a decode
// round trip (spec.md §8 "NLRI shape ... host bits are zero").
func TestPrefixHostBitsZeroedAfterRoundTrip(t *testing.T) {
	raw := netip.MustParsePrefix("10.10.10.255/24") // host bits set
	p := PrefixFromNetip(raw)
	if p.Addr() != netip.MustParseAddr("10.10.10.0") {
		t.Fatalf("construction did not mask host bits: got %s", p.Addr())
	}

	decoded, n, err := DecodePrefix(p.Encode(), AFIIPv4)
	if err != nil {
		t.Fatalf("DecodePrefix: %v", err)
	}
	if n != len(p.Encode()) {
		t.Errorf("consumed %d bytes, want %d", n, len(p.Encode()))
	}
	if decoded.Addr() != netip.MustParseAddr("10.10.10.0") {
		t.Errorf("decoded host bits not zero: got %s", decoded.Addr())
	}
	if decoded != p {
		t.Errorf("decode(encode(p)) != p: got %s, want %s", decoded, p)
	}
}

func TestPrefixRoundTrip(t *testing.T) {
	cases := []string{
		"0.0.0.0/0",
		"192.168.0.0/16",
		"10.0.0.0/8",
		"172.16.5.128/25",
		"255.255.255.255/32",
		"::/0",
		"2001:db8::/32",
		"fe80::1/128",
	}
	for _, s := range cases {
		p := MustParsePrefix(s)
		afi := AFIIPv4
		if p.Addr().Is6() {
			afi = AFIIPv6
		}
		decoded, n, err := DecodePrefix(p.Encode(), afi)
		if err != nil {
			t.Fatalf("%s: DecodePrefix: %v", s, err)
		}
		if n != len(p.Encode()) {
			t.Errorf("%s: consumed %d bytes, want %d", s, n, len(p.Encode()))
		}
		if decoded != p {
			t.Errorf("%s: decode(encode(p)) = %s, want %s", s, decoded, p)
		}
	}
}

func TestDecodePrefixListRoundTrip(t *testing.T) {
	prefixes := []Prefix{
		MustParsePrefix("10.10.1.0/24"),
		MustParsePrefix("10.10.2.0/24"),
		MustParsePrefix("10.10.3.0/24"),
	}
	var data []byte
	for _, p := range prefixes {
		data = append(data, p.Encode()...)
	}
	decoded, err := DecodePrefixList(data, AFIIPv4)
	if err != nil {
		t.Fatalf("DecodePrefixList: %v", err)
	}
	if len(decoded) != len(prefixes) {
		t.Fatalf("got %d prefixes, want %d", len(decoded), len(prefixes))
	}
	for i := range prefixes {
		if decoded[i] != prefixes[i] {
			t.Errorf("prefix %d: got %s, want %s", i, decoded[i], prefixes[i])
		}
	}
}

func TestDecodePrefixRejectsOversizedLength(t *testing.T) {
	if _, _, err := DecodePrefix([]byte{33, 1, 2, 3, 4}, AFIIPv4); err == nil {
		t.Errorf("expected an error for a /33 IPv4 prefix length")
	}
}

func TestDecodePrefixRejectsTruncatedData(t *testing.T) {
	if _, _, err := DecodePrefix([]byte{24, 10, 10}, AFIIPv4); err == nil {
		t.Errorf("expected an error when fewer address bytes are present than plen requires")
	}
}
