// Package rib implements the per-address-family routing information base:
// Adj-RIB-In ingestion, Loc-RIB storage keyed by prefix, the best-path
// decision process, and diff computation against the previous best
// (spec.md §4.3).
package rib

import (
	"net/netip"
	"time"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

// PathType distinguishes a route learned from a peer outside the local AS
// from one learned from a peer inside it.
type PathType int

const (
	PathExternal PathType = iota
	PathInternal
)

// PeerType mirrors PathType at the session level; the two are carried
// separately (rather than derived from one another at read time) because
// spec.md's Route entry lists both fields explicitly.
type PeerType int

const (
	PeerEBGP PeerType = iota
	PeerIBGP
)

// Route is one candidate path to a prefix, as held in Loc-RIB.
type Route struct {
	ASPath    nlri.ASPath
	Origin    wire.OriginCode
	NextHop   netip.Addr
	LocalPref uint32
	HasLocal  bool
	MED       uint32
	HasMED    bool
	PathType  PathType
	PeerType  PeerType
	PeerRID   netip.Addr
	PeerIP    netip.Addr
	Unknown   []wire.PathAttribute
	RecvTime  time.Time
}

// neighborAS returns the AS this route was learned from: the leftmost ASN
// in its AS_PATH, used to scope MED comparisons (spec.md §4.3 step 5).
func (r Route) neighborAS() (nlri.ASN, bool) {
	for _, seg := range r.ASPath {
		if len(seg.ASNs) > 0 {
			return seg.ASNs[0], true
		}
	}
	return 0, false
}

// Less reports whether a is strictly preferred over b under the decision
// process in spec.md §4.3: higher local_pref, external over internal,
// shorter AS_PATH, lower origin, lower MED (scoped to routes sharing a
// neighbor AS — the pinned reading of the spec's open question), eBGP
// over iBGP, earlier recv_time for eBGP, lower peer_rid, lower peer_ip.
func Less(a, b Route) bool {
	if a.LocalPref != b.LocalPref {
		return a.LocalPref > b.LocalPref
	}
	if a.PathType != b.PathType {
		return a.PathType == PathExternal
	}
	if la, lb := a.ASPath.Length(), b.ASPath.Length(); la != lb {
		return la < lb
	}
	if a.Origin != b.Origin {
		return a.Origin < b.Origin
	}
	if asA, okA := a.neighborAS(); okA {
		if asB, okB := b.neighborAS(); okB && asA == asB && a.HasMED && b.HasMED && a.MED != b.MED {
			return a.MED < b.MED
		}
	}
	if a.PeerType != b.PeerType {
		return a.PeerType == PeerEBGP
	}
	if a.PeerType == PeerEBGP && !a.RecvTime.Equal(b.RecvTime) {
		return a.RecvTime.Before(b.RecvTime)
	}
	if cmp := a.PeerRID.Compare(b.PeerRID); cmp != 0 {
		return cmp < 0
	}
	return a.PeerIP.Compare(b.PeerIP) < 0
}

// best returns the most-preferred reachable entry among candidates, or
// false if none is reachable.
func best(candidates []Route, fib Reachable) (Route, bool) {
	var (
		winner Route
		found  bool
	)
	for _, r := range candidates {
		if !fib.HasRoute(r.NextHop) {
			continue
		}
		if !found || Less(r, winner) {
			winner = r
			found = true
		}
	}
	return winner, found
}

// Reachable is the subset of the FIB snapshot interface the decision
// process needs: next-hop gating (spec.md §4.3 "Next-hop gating").
type Reachable interface {
	HasRoute(addr netip.Addr) bool
}
