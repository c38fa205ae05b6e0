package rib

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elauriault/ubgpd-sub000/internal/metrics"
	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

// RouteAttrs is the set of path attributes a peer FSM extracts from a
// received UPDATE for one batch of NLRI, common to every prefix in that
// batch (spec.md §3 "RIB update message (internal)").
type RouteAttrs struct {
	ASPath       nlri.ASPath
	Origin       wire.OriginCode
	NextHop      netip.Addr
	LocalPref    uint32
	HasLocalPref bool
	MED          uint32
	HasMED       bool
	PeerType     PeerType
	PeerRID      netip.Addr
	PeerIP       netip.Addr

	// Unknown holds optional transitive attributes this speaker does not
	// recognize, carried through verbatim so they can be re-advertised with
	// the partial bit set (spec.md §4.1).
	Unknown []wire.PathAttribute
}

// Update is what a peer FSM hands the RIB manager for one AF after parsing
// an UPDATE message: a batch of newly reachable prefixes sharing Attrs, a
// batch of withdrawn prefixes, and the router-id the batch came from
// (spec.md §4.2 "Established on receive UPDATE").
type Update struct {
	Added         []nlri.Prefix
	Withdrawn     []nlri.Prefix
	Attrs         RouteAttrs
	SourcePeerRID netip.Addr
}

// Diff is one line of the change list the manager fans out after a batch:
// Route nil means the prefix was withdrawn (spec.md §4.3 "Fan-out").
type Diff struct {
	Prefix nlri.Prefix
	Route  *Route
}

// Manager owns Loc-RIB for a single address family: the prefix table, the
// best-path decision process, and incremental diff fan-out to every
// Established peer subscribed to this AF (spec.md §4.3). One Manager exists
// per AF. It has no event channel or goroutine of its own: each peer
// session calls Process directly from its own goroutine and m.mu
// serializes the batches, so batches from different peers are applied in
// the order they acquire the lock.
type Manager struct {
	mu    sync.Mutex
	af    nlri.AF
	table map[nlri.Prefix][]Route

	fib      Reachable
	localASN nlri.ASN
	log      *zap.Logger

	subsMu sync.RWMutex
	subs   map[string]chan<- []Diff

	fibNotify chan<- struct{}
}

// NewManager creates an empty Loc-RIB for af. fibNotify, if non-nil,
// receives a non-blocking signal after every batch, whether or not it
// produced any diffs (spec.md §4.3 "sends FibUpdated to the FIB manager").
func NewManager(af nlri.AF, localASN nlri.ASN, fib Reachable, fibNotify chan<- struct{}, log *zap.Logger) *Manager {
	return &Manager{
		af:        af,
		table:     make(map[nlri.Prefix][]Route),
		fib:       fib,
		localASN:  localASN,
		log:       log.With(zap.Stringer("af", af)),
		subs:      make(map[string]chan<- []Diff),
		fibNotify: fibNotify,
	}
}

// Subscribe registers an Established peer's diff channel; Process fans out
// every subsequent batch's diffs to it. Only call for peers in Established
// state for this AF.
func (m *Manager) Subscribe(peerID string, ch chan<- []Diff) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs[peerID] = ch
}

// Unsubscribe removes a peer, called when it leaves Established (spec.md
// §5 "Channel send failure (peer gone): drop the update for that peer
// only").
func (m *Manager) Unsubscribe(peerID string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.subs, peerID)
}

// Snapshot returns the current best route for every prefix, used to seed a
// peer's outbound queue the moment it reaches Established (spec.md §4.2
// OpenConfirm→Established: "push current Loc-RIB entries ... to the peer
// outbound queue").
func (m *Manager) Snapshot() []Diff {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Diff, 0, len(m.table))
	for prefix, candidates := range m.table {
		if r, ok := best(candidates, m.fib); ok {
			route := r
			out = append(out, Diff{Prefix: prefix, Route: &route})
		}
	}
	return out
}

// Process applies one Update to Loc-RIB following the decision process in
// spec.md §4.3, then fans the resulting diff list out to every subscribed
// peer and signals the FIB manager. It returns the diffs for callers (e.g.
// tests) that want to inspect them directly.
func (m *Manager) Process(u Update) []Diff {
	m.mu.Lock()
	var diffs []Diff
	now := time.Now()

	for _, prefix := range u.Added {
		if u.Attrs.ASPath.Contains(m.localASN) {
			// Loop detection (spec.md §4.3 "On additions"): never admitted
			// to Loc-RIB at all.
			continue
		}
		route := Route{
			ASPath:    u.Attrs.ASPath,
			Origin:    u.Attrs.Origin,
			NextHop:   u.Attrs.NextHop,
			LocalPref: u.Attrs.LocalPref,
			HasLocal:  u.Attrs.HasLocalPref,
			MED:       u.Attrs.MED,
			HasMED:    u.Attrs.HasMED,
			PathType:  pathTypeOf(u.Attrs.PeerType),
			PeerType:  u.Attrs.PeerType,
			PeerRID:   u.Attrs.PeerRID,
			PeerIP:    u.Attrs.PeerIP,
			Unknown:   u.Attrs.Unknown,
			RecvTime:  now,
		}

		candidates, existed := m.table[prefix]
		if !existed {
			m.table[prefix] = []Route{route}
			if m.fib.HasRoute(route.NextHop) {
				r := route
				diffs = append(diffs, Diff{Prefix: prefix, Route: &r})
			}
			continue
		}

		prevBest, hadBest := best(candidates, m.fib)
		// Replace any earlier route from the same peer for this prefix
		// rather than accumulating duplicates (a peer re-announcing a
		// prefix is an update, not a second candidate).
		next := make([]Route, 0, len(candidates)+1)
		for _, c := range candidates {
			if c.PeerRID == route.PeerRID {
				continue
			}
			next = append(next, c)
		}
		next = append(next, route)
		sort.SliceStable(next, func(i, j int) bool { return Less(next[i], next[j]) })
		m.table[prefix] = next

		newBest, hasBest := best(next, m.fib)
		if hasBest && (!hadBest || !sameAnnouncement(newBest, prevBest)) {
			r := newBest
			diffs = append(diffs, Diff{Prefix: prefix, Route: &r})
		}
	}

	for _, prefix := range u.Withdrawn {
		candidates, ok := m.table[prefix]
		if !ok {
			continue
		}
		prevBest, hadBest := best(candidates, m.fib)

		next := candidates[:0:0]
		for _, c := range candidates {
			if c.PeerRID != u.SourcePeerRID {
				next = append(next, c)
			}
		}
		if len(next) == 0 {
			delete(m.table, prefix)
		} else {
			m.table[prefix] = next
		}

		if hadBest && prevBest.PeerRID == u.SourcePeerRID {
			diffs = append(diffs, Diff{Prefix: prefix, Route: nil})
		}
	}
	routeCount := len(m.table)
	m.mu.Unlock()
	metrics.RIBRoutes.WithLabelValues(m.af.String()).Set(float64(routeCount))

	if m.fibNotify != nil {
		select {
		case m.fibNotify <- struct{}{}:
		default:
		}
	}

	if len(diffs) == 0 {
		return diffs
	}

	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for peerID, ch := range m.subs {
		select {
		case ch <- diffs:
		default:
			m.log.Warn("peer diff channel full, dropping batch", zap.String("peer", peerID))
		}
	}
	return diffs
}

// pathTypeOf maps peer locality onto the Route.PathType spec.md §3 carries
// alongside it; this speaker has no policy layer that would let the two
// diverge, so they always agree.
func pathTypeOf(pt PeerType) PathType {
	if pt == PeerEBGP {
		return PathExternal
	}
	return PathInternal
}

// sameAnnouncement reports whether two routes would produce the same
// outbound announcement, used to decide whether a new best path actually
// changes what gets advertised (spec.md §4.3 "differs from previous_best").
func sameAnnouncement(a, b Route) bool {
	if a.NextHop != b.NextHop || a.Origin != b.Origin || a.PeerRID != b.PeerRID {
		return false
	}
	if a.ASPath.Length() != b.ASPath.Length() {
		return false
	}
	if a.HasLocal != b.HasLocal || (a.HasLocal && a.LocalPref != b.LocalPref) {
		return false
	}
	if a.HasMED != b.HasMED || (a.HasMED && a.MED != b.MED) {
		return false
	}
	return true
}
