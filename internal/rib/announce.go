package rib

import (
	"net/netip"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

// legacy reports whether af uses the UPDATE message's fixed withdrawn/NLRI
// fields rather than MP_REACH_NLRI/MP_UNREACH_NLRI (spec.md §4.1: "IPv6 (and
// multicast) reachability travels in the MP_REACH_NLRI / MP_UNREACH_NLRI
// attributes instead").
func legacy(af nlri.AF) bool {
	return af.AFI == nlri.AFIIPv4 && af.SAFI == nlri.SAFIUnicast
}

type bucket struct {
	attrs   []wire.PathAttribute
	nextHop netip.Addr
	nlris   []nlri.Prefix
}

// Announce turns a batch of Loc-RIB diffs for one AF into the UPDATE
// messages a single Established peer should receive, applying the
// per-session tailoring spec.md §4.2.2 requires: eBGP NEXT_HOP rewrite and
// AS_PATH prepend, iBGP no-reflect suppression, and transitive-only
// attribute filtering across AS boundaries.
func Announce(diffs []Diff, af nlri.AF, localASN nlri.ASN, localAddr netip.Addr, outboundIBGP bool) []wire.UpdateMessage {
	var withdrawn []nlri.Prefix
	var buckets []*bucket
	bySig := map[string]*bucket{}

	for _, d := range diffs {
		if d.Route == nil {
			withdrawn = append(withdrawn, d.Prefix)
			continue
		}
		route := *d.Route
		if outboundIBGP && route.PeerType == PeerIBGP {
			// iBGP no-reflect (spec.md §4.2.2 step 3): a route learned from
			// one iBGP peer is never re-advertised to another.
			continue
		}
		attrs, nextHop := buildAttrs(route, localASN, localAddr, outboundIBGP)
		sig := attrSignature(attrs, nextHop)
		b, ok := bySig[sig]
		if !ok {
			b = &bucket{attrs: attrs, nextHop: nextHop}
			bySig[sig] = b
			buckets = append(buckets, b)
		}
		b.nlris = append(b.nlris, d.Prefix)
	}

	isLegacy := legacy(af)
	var out []wire.UpdateMessage
	piggybacked := false

	for _, b := range buckets {
		msg := wire.UpdateMessage{Attrs: b.attrs}
		if isLegacy {
			msg.NLRI = b.nlris
			if !piggybacked && len(withdrawn) > 0 {
				msg.WithdrawnRoutes = withdrawn
				piggybacked = true
			}
		} else {
			msg.Attrs = append(msg.Attrs, wire.MPReachAttribute(wire.MPReachNLRI{
				AF:      af,
				NextHop: nextHopBytes(b.nextHop),
				NLRI:    b.nlris,
			}))
		}
		out = append(out, msg)
	}

	if len(withdrawn) > 0 && !piggybacked {
		if isLegacy {
			out = append(out, wire.UpdateMessage{WithdrawnRoutes: withdrawn})
		} else {
			out = append(out, wire.UpdateMessage{Attrs: []wire.PathAttribute{
				wire.MPUnreachAttribute(wire.MPUnreachNLRI{AF: af, NLRI: withdrawn}),
			}})
		}
	}
	return out
}

// buildAttrs derives the outbound path attributes and effective next hop
// for one route, tailored to the peer this announcement is headed to.
func buildAttrs(r Route, localASN nlri.ASN, localAddr netip.Addr, outboundIBGP bool) ([]wire.PathAttribute, netip.Addr) {
	asPath := r.ASPath
	nextHop := r.NextHop
	if !outboundIBGP {
		// spec.md §4.2.2 step 2: rewrite NEXT_HOP to the local session
		// address and prepend the local ASN once, but only when the local
		// address is in the same address family as the route being
		// announced (a v6 NLRI over a v4-addressed session keeps its
		// learned next hop rather than mixing families).
		asPath = asPath.Prepend(localASN)
		if localAddr.IsValid() && localAddr.Is4() == r.NextHop.Is4() {
			nextHop = localAddr
		}
	}

	attrs := []wire.PathAttribute{
		wire.OriginAttribute(r.Origin),
		wire.ASPathAttribute(asPath),
	}
	if nextHop.Is4() {
		attrs = append(attrs, wire.NextHopAttribute(nextHop.As4()))
	}
	if r.HasMED {
		attrs = append(attrs, wire.MEDAttribute(r.MED))
	}
	if outboundIBGP && r.HasLocal {
		// LOCAL_PREF only ever travels between iBGP peers (RFC 4271 §5.1.5),
		// regardless of its transitive flag.
		attrs = append(attrs, wire.LocalPrefAttribute(r.LocalPref))
	}
	for _, a := range r.Unknown {
		// The partial bit is set here, at the moment of re-advertisement
		// (spec.md §4.1), never at decode time.
		attrs = append(attrs, a.WithPartial())
	}

	if !outboundIBGP {
		// spec.md §4.2.2 step 4: cross-AS announcements carry transitive
		// attributes only.
		kept := attrs[:0]
		for _, a := range attrs {
			if a.Transitive() {
				kept = append(kept, a)
			}
		}
		attrs = kept
	}
	return attrs, nextHop
}

// nextHopBytes renders addr in the form MP_REACH_NLRI expects: 4 bytes for
// IPv4, 16 for IPv6.
func nextHopBytes(addr netip.Addr) []byte {
	if addr.Is4() {
		a := addr.As4()
		return a[:]
	}
	a := addr.As16()
	return a[:]
}

// attrSignature produces a stable key grouping routes that would announce
// identically, so Announce coalesces their NLRI into a single UPDATE
// (spec.md §4.2.2 step 5, "coalescing prefixes").
func attrSignature(attrs []wire.PathAttribute, nextHop netip.Addr) string {
	b := wire.EncodeAttributes(attrs)
	return nextHop.String() + "|" + string(b)
}
