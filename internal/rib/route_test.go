package rib

import (
	"net/netip"
	"testing"
	"time"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
)

func seq(asns ...nlri.ASN) nlri.ASPath {
	return nlri.ASPath{{Type: nlri.SegSequence, ASNs: asns}}
}

func TestLessPrefersHigherLocalPref(t *testing.T) {
	a := Route{LocalPref: 200, HasLocal: true}
	b := Route{LocalPref: 100, HasLocal: true}
	if !Less(a, b) || Less(b, a) {
		t.Fatalf("higher local_pref must win regardless of other fields")
	}
}

func TestLessPrefersExternalOverInternal(t *testing.T) {
	a := Route{PathType: PathExternal}
	b := Route{PathType: PathInternal}
	if !Less(a, b) {
		t.Fatalf("external path must be preferred over internal when tied on local_pref")
	}
}

func TestLessPrefersShorterASPath(t *testing.T) {
	a := Route{ASPath: seq(65001)}
	b := Route{ASPath: seq(65001, 65002, 65003)}
	if !Less(a, b) {
		t.Fatalf("shorter AS_PATH must win")
	}
}

func TestLessIsATotalOrderAmongDistinctRoutes(t *testing.T) {
	// A handful of routes that differ on successively later tiebreakers:
	// Less must be irreflexive, and for every pair of distinct routes
	// exactly one of Less(a,b) and Less(b,a) must hold.
	routes := []Route{
		{LocalPref: 100, PeerRID: netip.MustParseAddr("1.1.1.1")},
		{LocalPref: 100, PeerRID: netip.MustParseAddr("2.2.2.2")},
		{LocalPref: 100, PeerRID: netip.MustParseAddr("1.1.1.1"), PeerIP: netip.MustParseAddr("9.9.9.9")},
	}
	for i := range routes {
		if Less(routes[i], routes[i]) {
			t.Fatalf("Less must be irreflexive")
		}
		for j := range routes {
			if i == j {
				continue
			}
			if Less(routes[i], routes[j]) && Less(routes[j], routes[i]) {
				t.Fatalf("Less must be asymmetric for distinct routes %d,%d", i, j)
			}
			if !Less(routes[i], routes[j]) && !Less(routes[j], routes[i]) {
				t.Fatalf("Less must order distinct routes %d,%d one way or the other", i, j)
			}
		}
	}
}

func TestBestSkipsUnreachableNextHops(t *testing.T) {
	reachable := fakeFib{reachable: map[string]bool{"192.0.2.1": true}}
	candidates := []Route{
		{LocalPref: 200, NextHop: netip.MustParseAddr("192.0.2.2")}, // unreachable, would otherwise win
		{LocalPref: 100, NextHop: netip.MustParseAddr("192.0.2.1")},
	}
	r, ok := best(candidates, reachable)
	if !ok || r.NextHop.String() != "192.0.2.1" {
		t.Fatalf("best must skip unreachable next hops, got %#v ok=%v", r, ok)
	}
}

func TestMEDComparisonScopedToSameNeighborAS(t *testing.T) {
	a := Route{ASPath: seq(65100), MED: 10, HasMED: true, RecvTime: time.Now()}
	b := Route{ASPath: seq(65200), MED: 5, HasMED: true, RecvTime: time.Now()}
	// Different neighbor ASes: MED must not be compared, so earlier
	// tiebreakers (here, nothing else differs) leave order undecided by
	// MED alone; Less must not report b as preferred purely on its lower MED.
	if Less(b, a) {
		t.Fatalf("MED must only be compared among routes sharing a neighbor AS")
	}
}
