package speaker

import (
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/elauriault/ubgpd-sub000/internal/config"
	"github.com/elauriault/ubgpd-sub000/internal/fsm"
	"github.com/elauriault/ubgpd-sub000/internal/metrics"
	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/rib"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

const diffQueueDepth = 64

// Neighbor drives one configured peer's FSM and bridges it to the shared
// per-AF RIBs: received UPDATEs feed rib.Manager.Process, and RIB diffs for
// every address family negotiated at Established feed back out as
// session-tailored announcements (spec.md §4.2, §4.3).
//
// handleState and handleUpdate are only ever invoked from the session's own
// single-goroutine event loop (see internal/fsm's dispatch invariant), so
// activeFamilies needs no lock of its own.
type Neighbor struct {
	id       string
	peerIP   netip.Addr
	peerASN  nlri.ASN
	isIBGP   bool
	families []nlri.AF
	ribs     map[nlri.AF]*rib.Manager
	localASN nlri.ASN
	localIP  netip.Addr
	session  *fsm.Session
	log      *zap.Logger

	activeFamilies map[nlri.AF]chan struct{}
}

func (s *Speaker) newNeighbor(nc config.NeighborConfig) (*Neighbor, error) {
	peerIP, err := netip.ParseAddr(nc.IP)
	if err != nil {
		return nil, fmt.Errorf("speaker: neighbor %s: %w", nc.IP, err)
	}

	holdTime := time.Duration(s.cfg.HoldTime) * time.Second
	if nc.HoldTime != 0 {
		holdTime = time.Duration(nc.HoldTime) * time.Second
	}

	configuredFamilies := nc.Families
	if len(configuredFamilies) == 0 {
		configuredFamilies = s.cfg.Families
	}
	var families []nlri.AF
	ribs := make(map[nlri.AF]*rib.Manager)
	for _, f := range configuredFamilies {
		af := f.AF()
		fr, ok := s.families[af]
		if !ok {
			continue
		}
		families = append(families, af)
		ribs[af] = fr.rib
	}

	isIBGP := nlri.ASN(nc.ASN) == s.localASN

	caps := make([]wire.Capability, 0, len(families))
	for _, af := range families {
		caps = append(caps, wire.MultiprotocolCapability(uint16(af.AFI), uint8(af.SAFI)))
	}

	sess := fsm.New(fsm.Config{
		LocalASN: uint16(s.localASN),
		LocalRID: s.localRID.As4(),
		PeerASN:  nc.ASN,
		PeerAddr: peerIP.String(),
		HoldTime: holdTime,
		Caps:     caps,
	}, s.log)

	n := &Neighbor{
		id:             nc.IP,
		peerIP:         peerIP,
		peerASN:        nlri.ASN(nc.ASN),
		isIBGP:         isIBGP,
		families:       families,
		ribs:           ribs,
		localASN:       s.localASN,
		localIP:        s.localIP,
		session:        sess,
		log:            s.log.With(zap.String("peer", nc.IP)),
		activeFamilies: make(map[nlri.AF]chan struct{}),
	}
	sess.OnStateChange(n.handleState)
	sess.OnUpdate(n.handleUpdate)
	return n, nil
}

func (n *Neighbor) start() {
	n.session.Enqueue(fsm.AutomaticStart)
}

// handleState reacts to every FSM transition: it exports the peer-state
// metric and, on reaching Established, subscribes to every negotiated
// address family's RIB diffs and pushes the current Loc-RIB snapshot
// (spec.md §4.2 "OpenConfirm -> Established"). Leaving Established tears
// the subscriptions back down.
func (n *Neighbor) handleState(st fsm.State) {
	metrics.PeerState.WithLabelValues(n.id).Set(float64(st))

	if st != fsm.Established {
		for af, stop := range n.activeFamilies {
			if mgr, ok := n.ribs[af]; ok {
				mgr.Unsubscribe(n.id)
			}
			close(stop)
			delete(n.activeFamilies, af)
		}
		return
	}

	negotiated := negotiatedFamilies(n.families, n.session.OpenRecv())
	for _, af := range negotiated {
		mgr, ok := n.ribs[af]
		if !ok {
			continue
		}
		ch := make(chan []rib.Diff, diffQueueDepth)
		stop := make(chan struct{})
		n.activeFamilies[af] = stop
		mgr.Subscribe(n.id, ch)
		go n.drainDiffs(af, ch, stop)
		if snap := mgr.Snapshot(); len(snap) > 0 {
			n.announce(af, snap)
		}
	}
}

// negotiatedFamilies intersects the families this neighbor is configured
// for with the Multiprotocol Extensions capabilities the peer actually
// advertised in its OPEN. A peer with no such capability at all is treated
// as IPv4-unicast-only, the RFC 4760 §4 fallback for legacy speakers.
func negotiatedFamilies(configured []nlri.AF, open *wire.OpenMessage) []nlri.AF {
	if open == nil {
		return nil
	}
	var remote []nlri.AF
	for _, c := range open.Caps {
		if c.Code != wire.CapMultiprotocol {
			continue
		}
		mp, err := wire.DecodeMultiprotocol(c.Value)
		if err != nil {
			continue
		}
		remote = append(remote, nlri.AF{AFI: nlri.AFI(mp.AFI), SAFI: nlri.SAFI(mp.SAFI)})
	}
	if len(remote) == 0 {
		remote = []nlri.AF{{AFI: nlri.AFIIPv4, SAFI: nlri.SAFIUnicast}}
	}
	var out []nlri.AF
	for _, af := range configured {
		for _, r := range remote {
			if af == r {
				out = append(out, af)
				break
			}
		}
	}
	return out
}

func (n *Neighbor) drainDiffs(af nlri.AF, ch <-chan []rib.Diff, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case diffs := <-ch:
			n.announce(af, diffs)
		}
	}
}

// announce converts a batch of Loc-RIB diffs into session-tailored UPDATE
// messages (spec.md §4.2.2) and queues them for the session's send loop. A
// full queue means the peer isn't draining fast enough; the batch is
// dropped for this peer only, the same failure mode spec.md §5 describes
// for a gone peer's channel.
func (n *Neighbor) announce(af nlri.AF, diffs []rib.Diff) {
	for _, m := range rib.Announce(diffs, af, n.localASN, n.localIP, n.isIBGP) {
		select {
		case n.session.Updates() <- fsm.Update(m):
		default:
			n.log.Warn("update queue full, dropping announcement batch", zap.Stringer("af", af))
		}
	}
}

func (n *Neighbor) peerType() rib.PeerType {
	if n.isIBGP {
		return rib.PeerIBGP
	}
	return rib.PeerEBGP
}

func (n *Neighbor) remoteRID() netip.Addr {
	if open := n.session.OpenRecv(); open != nil {
		return open.RouterID
	}
	return netip.Addr{}
}

// handleUpdate turns one received UPDATE into Adj-RIB-In ingestion calls
// against every address family it carries NLRI for: the legacy IPv4-unicast
// fields directly, and any MP_REACH_NLRI / MP_UNREACH_NLRI attribute for
// every other negotiated family (spec.md §4.2 "Established on receive
// UPDATE", RFC 4760 §3-4). A semantic decode failure is reported back to
// the FSM as an error, which tears the session down with a
// NOTIFICATION{UpdateMessageError} exactly like a wire-level decode error.
func (n *Neighbor) handleUpdate(m wire.UpdateMessage) error {
	base := rib.RouteAttrs{PeerType: n.peerType(), PeerRID: n.remoteRID(), PeerIP: n.peerIP}
	var hasOrigin, hasASPath, hasNextHop bool

	if a, ok := wire.Find(m.Attrs, wire.AttrOrigin); ok {
		o, err := wire.ParseOrigin(a.Value)
		if err != nil {
			return err
		}
		base.Origin = o
		hasOrigin = true
	}
	if a, ok := wire.Find(m.Attrs, wire.AttrASPath); ok {
		p, err := nlri.DecodeASPath(a.Value)
		if err != nil {
			return err
		}
		base.ASPath = p
		hasASPath = true
	}
	if a, ok := wire.Find(m.Attrs, wire.AttrNextHop); ok {
		nh, err := wire.ParseNextHop(a.Value)
		if err != nil {
			return err
		}
		base.NextHop = netip.AddrFrom4(nh)
		hasNextHop = true
	}
	if a, ok := wire.Find(m.Attrs, wire.AttrLocalPref); ok {
		lp, err := wire.ParseUint32(a.Value)
		if err != nil {
			return err
		}
		base.LocalPref, base.HasLocalPref = lp, true
	}
	if a, ok := wire.Find(m.Attrs, wire.AttrMED); ok {
		med, err := wire.ParseUint32(a.Value)
		if err != nil {
			return err
		}
		base.MED, base.HasMED = med, true
	}
	for _, a := range m.Attrs {
		if !wire.IsKnownAttribute(a.Code) && a.Optional() && a.Transitive() {
			base.Unknown = append(base.Unknown, a)
		}
	}

	if len(m.NLRI) > 0 && (!hasOrigin || !hasASPath || !hasNextHop) {
		// spec.md §7 UPDATE semantics: reachability cannot be advertised
		// without all three well-known mandatory attributes.
		return &wire.UpdateError{Subcode: wire.MissingWellKnownAttribute}
	}

	if len(m.WithdrawnRoutes) > 0 || len(m.NLRI) > 0 {
		af := nlri.AF{AFI: nlri.AFIIPv4, SAFI: nlri.SAFIUnicast}
		if mgr, ok := n.ribs[af]; ok {
			mgr.Process(rib.Update{
				Added:         m.NLRI,
				Withdrawn:     m.WithdrawnRoutes,
				Attrs:         base,
				SourcePeerRID: base.PeerRID,
			})
		}
	}

	for _, a := range m.Attrs {
		switch a.Code {
		case wire.AttrMPReachNLRI:
			mp, err := wire.DecodeMPReach(a.Value)
			if err != nil {
				return err
			}
			if len(mp.NLRI) > 0 && (!hasOrigin || !hasASPath) {
				// NEXT_HOP itself travels inside MP_REACH_NLRI, not as a
				// separate attribute, for these families (RFC 4760 §3); only
				// ORIGIN and AS_PATH remain mandatory here.
				return &wire.UpdateError{Subcode: wire.MissingWellKnownAttribute}
			}
			mgr, ok := n.ribs[mp.AF]
			if !ok {
				continue
			}
			attrs := base
			attrs.NextHop = decodeNextHop(mp.NextHop)
			mgr.Process(rib.Update{Added: mp.NLRI, Attrs: attrs, SourcePeerRID: base.PeerRID})
		case wire.AttrMPUnreachNLRI:
			mp, err := wire.DecodeMPUnreach(a.Value)
			if err != nil {
				return err
			}
			mgr, ok := n.ribs[mp.AF]
			if !ok {
				continue
			}
			mgr.Process(rib.Update{Withdrawn: mp.NLRI, SourcePeerRID: base.PeerRID})
		}
	}
	return nil
}

// decodeNextHop parses an MP_REACH_NLRI next hop in its native 4- or
// 16-octet encoding.
func decodeNextHop(b []byte) netip.Addr {
	switch len(b) {
	case 4:
		var a [4]byte
		copy(a[:], b)
		return netip.AddrFrom4(a)
	case 16:
		var a [16]byte
		copy(a[:], b)
		return netip.AddrFrom16(a)
	default:
		return netip.Addr{}
	}
}
