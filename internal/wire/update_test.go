package wire

import (
	"bytes"
	"testing"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
)

// scenario2Body is the exact byte vector from spec.md §8 scenario 2.
var scenario2Body = []byte{
	0x00, 0x00, 0x00, 0x14,
	0x40, 0x01, 0x01, 0x00,
	0x40, 0x02, 0x06, 0x02, 0x02, 0xfe, 0xb0, 0xfe, 0x4c,
	0x40, 0x03, 0x04, 0x02, 0x02, 0x02, 0x02,
	0x18, 0x0a, 0x0a, 0x01,
	0x18, 0x0a, 0x0a, 0x02,
	0x18, 0x0a, 0x0a, 0x03,
}

func TestReadUpdate(t *testing.T) {
	m, err := DecodeUpdate(scenario2Body)
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if len(m.WithdrawnRoutes) != 0 {
		t.Errorf("expected no withdrawn routes, got %v", m.WithdrawnRoutes)
	}

	origin, ok := Find(m.Attrs, AttrOrigin)
	if !ok {
		t.Fatal("expected an ORIGIN attribute")
	}
	o, err := ParseOrigin(origin.Value)
	if err != nil || o != OriginIGP {
		t.Errorf("got origin %v (err %v), want IGP", o, err)
	}

	asPathAttr, ok := Find(m.Attrs, AttrASPath)
	if !ok {
		t.Fatal("expected an AS_PATH attribute")
	}
	asPath, err := nlri.DecodeASPath(asPathAttr.Value)
	if err != nil {
		t.Fatalf("DecodeASPath: %v", err)
	}
	want := nlri.ASPath{{Type: nlri.SegSequence, ASNs: []nlri.ASN{65200, 65100}}}
	if len(asPath) != 1 || asPath[0].Type != want[0].Type || !equalASNs(asPath[0].ASNs, want[0].ASNs) {
		t.Errorf("got AS_PATH %v, want %v", asPath, want)
	}

	nh, ok := Find(m.Attrs, AttrNextHop)
	if !ok {
		t.Fatal("expected a NEXT_HOP attribute")
	}
	nhAddr, err := ParseNextHop(nh.Value)
	if err != nil || nhAddr != [4]byte{2, 2, 2, 2} {
		t.Errorf("got next hop %v (err %v), want 2.2.2.2", nhAddr, err)
	}

	wantNLRI := []nlri.Prefix{
		nlri.MustParsePrefix("10.10.1.0/24"),
		nlri.MustParsePrefix("10.10.2.0/24"),
		nlri.MustParsePrefix("10.10.3.0/24"),
	}
	if len(m.NLRI) != len(wantNLRI) {
		t.Fatalf("got %d NLRI, want %d", len(m.NLRI), len(wantNLRI))
	}
	for i := range wantNLRI {
		if m.NLRI[i] != wantNLRI[i] {
			t.Errorf("NLRI[%d]: got %s, want %s", i, m.NLRI[i], wantNLRI[i])
		}
	}
}

func equalASNs(a, b []nlri.ASN) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestUpdateBytes checks that re-encoding the decoded scenario 2 message
// reproduces the exact original bytes (spec.md §8 "encode(decode(f)) == f").
func TestUpdateBytes(t *testing.T) {
	m, err := DecodeUpdate(scenario2Body)
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	got := EncodeUpdate(m)
	if !bytes.Equal(got, scenario2Body) {
		t.Errorf("EncodeUpdate mismatch\n got  %x\n want %x", got, scenario2Body)
	}
}

// TestUpdateRoundTrip checks decode(encode(m)) == m for representative
// UPDATE messages, including withdrawals and MP_REACH/MP_UNREACH carriage.
func TestUpdateRoundTrip(t *testing.T) {
	cases := []UpdateMessage{
		{},
		{
			WithdrawnRoutes: []nlri.Prefix{nlri.MustParsePrefix("192.168.0.0/16")},
		},
		{
			Attrs: []PathAttribute{
				OriginAttribute(OriginIGP),
				ASPathAttribute(nlri.ASPath{{Type: nlri.SegSequence, ASNs: []nlri.ASN{65001}}}),
				NextHopAttribute([4]byte{10, 0, 0, 1}),
			},
			NLRI: []nlri.Prefix{nlri.MustParsePrefix("10.0.0.0/24")},
		},
		{
			Attrs: []PathAttribute{
				OriginAttribute(OriginIGP),
				ASPathAttribute(nlri.ASPath{{Type: nlri.SegSequence, ASNs: []nlri.ASN{65001}}}),
				MPReachAttribute(MPReachNLRI{
					AF:      nlri.AF{AFI: nlri.AFIIPv6, SAFI: nlri.SAFIUnicast},
					NextHop: []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
					NLRI:    []nlri.Prefix{nlri.MustParsePrefix("2001:db8:1::/48")},
				}),
				MPUnreachAttribute(MPUnreachNLRI{
					AF:   nlri.AF{AFI: nlri.AFIIPv6, SAFI: nlri.SAFIUnicast},
					NLRI: []nlri.Prefix{nlri.MustParsePrefix("2001:db8:2::/48")},
				}),
			},
		},
	}
	for i, m := range cases {
		body := EncodeUpdate(m)
		got, err := DecodeUpdate(body)
		if err != nil {
			t.Fatalf("case %d: DecodeUpdate: %v", i, err)
		}
		reEncoded := EncodeUpdate(got)
		if !bytes.Equal(reEncoded, body) {
			t.Errorf("case %d: encode(decode(f)) != f\n got  %x\n want %x", i, reEncoded, body)
		}
	}
}

func TestMPReachUnreachRoundTrip(t *testing.T) {
	mr := MPReachNLRI{
		AF:      nlri.AF{AFI: nlri.AFIIPv6, SAFI: nlri.SAFIUnicast},
		NextHop: []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		NLRI:    []nlri.Prefix{nlri.MustParsePrefix("2001:db8::/32")},
	}
	decodedReach, err := DecodeMPReach(EncodeMPReach(mr))
	if err != nil {
		t.Fatalf("DecodeMPReach: %v", err)
	}
	if decodedReach.AF != mr.AF || !bytes.Equal(decodedReach.NextHop, mr.NextHop) || len(decodedReach.NLRI) != 1 || decodedReach.NLRI[0] != mr.NLRI[0] {
		t.Errorf("got %+v, want %+v", decodedReach, mr)
	}

	mu := MPUnreachNLRI{
		AF:   nlri.AF{AFI: nlri.AFIIPv6, SAFI: nlri.SAFIUnicast},
		NLRI: []nlri.Prefix{nlri.MustParsePrefix("2001:db8::/32")},
	}
	decodedUnreach, err := DecodeMPUnreach(EncodeMPUnreach(mu))
	if err != nil {
		t.Fatalf("DecodeMPUnreach: %v", err)
	}
	if decodedUnreach.AF != mu.AF || len(decodedUnreach.NLRI) != 1 || decodedUnreach.NLRI[0] != mu.NLRI[0] {
		t.Errorf("got %+v, want %+v", decodedUnreach, mu)
	}
}

func TestDecodeUpdateRejectsTruncatedBody(t *testing.T) {
	if _, err := DecodeUpdate(nil); err == nil {
		t.Errorf("expected an error decoding an empty UPDATE body")
	}
	if _, err := DecodeUpdate([]byte{0x00, 0x05}); err == nil {
		t.Errorf("expected an error when withdrawn_len claims more bytes than present")
	}
}
