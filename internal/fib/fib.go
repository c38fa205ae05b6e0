// Package fib maintains a read-only snapshot of the kernel forwarding
// table for one address family, used by internal/rib to gate best-path
// selection and announcement on next-hop reachability (spec.md §4.4).
package fib

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/gaissmai/bart"
	"go.uber.org/zap"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/rib"
)

// Reader is the OS-specific collaborator named in spec.md §6: it lists the
// kernel's current routes for one address family. The core never talks to
// netlink directly; production builds wire in the Linux reader in
// netlink_linux.go, tests and non-Linux builds use a stub or a fake.
type Reader interface {
	Routes(ctx context.Context, af nlri.AF) ([]netip.Prefix, error)
}

// Fib is one address family's kernel route snapshot. Reads (HasRoute) never
// block on reads of other Fib instances or on the network; only Refresh
// touches the Reader.
type Fib struct {
	af     nlri.AF
	reader Reader
	log    *zap.Logger

	mu    sync.RWMutex
	table *bart.Table[struct{}]
}

// New creates a Fib for af backed by reader. The returned snapshot is
// empty until the first Refresh.
func New(af nlri.AF, reader Reader, log *zap.Logger) *Fib {
	return &Fib{
		af:     af,
		reader: reader,
		log:    log.With(zap.Stringer("af", af)),
		table:  new(bart.Table[struct{}]),
	}
}

// Refresh reloads the snapshot from the OS routing facility. On failure
// the previous snapshot is kept and the error is only logged (spec.md §7
// "FIB refresh failure: log, keep previous snapshot").
func (f *Fib) Refresh(ctx context.Context) {
	routes, err := f.reader.Routes(ctx, f.af)
	if err != nil {
		f.log.Warn("fib refresh failed, keeping previous snapshot", zap.Error(err))
		return
	}
	next := new(bart.Table[struct{}])
	for _, p := range routes {
		next.Insert(p, struct{}{})
	}
	f.mu.Lock()
	f.table = next
	f.mu.Unlock()
}

// HasRoute reports whether some kernel route covers addr (spec.md §4.4).
func (f *Fib) HasRoute(addr netip.Addr) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.table.Lookup(addr)
	return ok
}

// Sync instructs the OS to install the current Loc-RIB best routes. This
// speaker runs unprivileged in test and most operational contexts, so Sync
// only builds the diagnostic LookupTrie and logs how many routes it would
// install; it never writes to the kernel route table (spec.md §4.4
// "implementers may stub this for unprivileged testing").
func (f *Fib) Sync(r *rib.Manager) {
	trie := NewLookupTrie()
	for _, d := range r.Snapshot() {
		if d.Route == nil {
			continue
		}
		trie.Insert(d.Prefix.Prefix, d.Route.NextHop)
	}
	f.log.Debug("fib sync computed install set", zap.Int("routes", trie.Len()))
}

// Manager runs the refresh/sync loop for one AF: it reacts to FibUpdated
// signals from the RIB manager and additionally refreshes on a fixed
// timer (spec.md §4.4 "The FIB manager task loops: await FibUpdated,
// refresh, sync; additionally refresh on a timer").
type Manager struct {
	fib          *Fib
	rib          *rib.Manager
	fibUpdated   <-chan struct{}
	refreshEvery time.Duration
	log          *zap.Logger
}

// NewManager wires a Fib to the RIB it gates, ready to run in its own
// goroutine via Run.
func NewManager(fib *Fib, ribMgr *rib.Manager, fibUpdated <-chan struct{}, refreshEvery time.Duration, log *zap.Logger) *Manager {
	return &Manager{fib: fib, rib: ribMgr, fibUpdated: fibUpdated, refreshEvery: refreshEvery, log: log}
}

// Run blocks until ctx is cancelled, refreshing and syncing on every
// FibUpdated signal and on refreshEvery's timer.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.refreshEvery)
	defer ticker.Stop()
	m.fib.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.fibUpdated:
			m.fib.Refresh(ctx)
			m.fib.Sync(m.rib)
		case <-ticker.C:
			m.fib.Refresh(ctx)
			m.fib.Sync(m.rib)
		}
	}
}
