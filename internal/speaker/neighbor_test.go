package speaker

import (
	"reflect"
	"testing"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

var (
	v4Unicast = nlri.AF{AFI: nlri.AFIIPv4, SAFI: nlri.SAFIUnicast}
	v6Unicast = nlri.AF{AFI: nlri.AFIIPv6, SAFI: nlri.SAFIUnicast}
)

// TestNegotiatedFamiliesNoCapabilityFallsBackToIPv4Unicast checks RFC 4760
// §4's documented fallback: a peer OPEN with no Multiprotocol Extensions
// capability at all is treated as IPv4-unicast-only.
func TestNegotiatedFamiliesNoCapabilityFallsBackToIPv4Unicast(t *testing.T) {
	open := &wire.OpenMessage{}
	got := negotiatedFamilies([]nlri.AF{v4Unicast, v6Unicast}, open)
	want := []nlri.AF{v4Unicast}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestNegotiatedFamiliesIntersectsConfiguredAndAdvertised checks that only
// families both locally configured and advertised by the peer come back,
// in configured order.
func TestNegotiatedFamiliesIntersectsConfiguredAndAdvertised(t *testing.T) {
	open := &wire.OpenMessage{
		Caps: []wire.Capability{
			wire.MultiprotocolCapability(uint16(nlri.AFIIPv6), uint8(nlri.SAFIUnicast)),
		},
	}
	got := negotiatedFamilies([]nlri.AF{v4Unicast, v6Unicast}, open)
	want := []nlri.AF{v6Unicast}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestNegotiatedFamiliesNilOpenIsEmpty guards against calling this before a
// peer's OPEN has actually been received.
func TestNegotiatedFamiliesNilOpenIsEmpty(t *testing.T) {
	got := negotiatedFamilies([]nlri.AF{v4Unicast}, nil)
	if len(got) != 0 {
		t.Fatalf("expected no families, got %v", got)
	}
}
