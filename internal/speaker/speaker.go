// Package speaker is the top-level coordinator: it owns one rib.Manager and
// fib.Fib/fib.Manager pair per configured address family, the neighbor
// table built from configuration, and the inbound TCP listener that matches
// new connections to a configured peer by remote address (spec.md §5).
package speaker

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elauriault/ubgpd-sub000/internal/config"
	"github.com/elauriault/ubgpd-sub000/internal/fib"
	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/internal/rib"
)

const fibRefreshInterval = 30 * time.Second

// familyRIB bundles one address family's Loc-RIB, FIB snapshot, and the FIB
// manager goroutine that keeps them synchronized (spec.md §4.3, §4.4).
type familyRIB struct {
	rib *rib.Manager
	fib *fib.Fib
	mgr *fib.Manager
}

// Speaker coordinates every configured neighbor against the shared set of
// per-address-family RIBs.
type Speaker struct {
	cfg *config.Config
	log *zap.Logger

	localASN nlri.ASN
	localRID netip.Addr
	localIP  netip.Addr

	families map[nlri.AF]*familyRIB

	mu        sync.Mutex
	neighbors []*Neighbor
}

// New builds a Speaker from cfg. No goroutine runs and nothing is reachable
// on the network until Start.
func New(cfg *config.Config, log *zap.Logger) (*Speaker, error) {
	rid, err := netip.ParseAddr(cfg.RouterID)
	if err != nil {
		return nil, fmt.Errorf("speaker: router-id: %w", err)
	}
	localIP, err := netip.ParseAddr(cfg.LocalIP)
	if err != nil {
		return nil, fmt.Errorf("speaker: local-ip: %w", err)
	}

	s := &Speaker{
		cfg:      cfg,
		log:      log,
		localASN: nlri.ASN(cfg.ASN),
		localRID: rid,
		localIP:  localIP,
		families: make(map[nlri.AF]*familyRIB),
	}

	reader := fib.NewNetlinkReader()
	for _, f := range cfg.Families {
		af := f.AF()
		fibInst := fib.New(af, reader, log)
		fibUpdated := make(chan struct{}, 1)
		ribMgr := rib.NewManager(af, s.localASN, fibInst, fibUpdated, log)
		fibMgr := fib.NewManager(fibInst, ribMgr, fibUpdated, fibRefreshInterval, log)
		s.families[af] = &familyRIB{rib: ribMgr, fib: fibInst, mgr: fibMgr}
	}

	for _, nc := range cfg.Neighbors {
		n, err := s.newNeighbor(nc)
		if err != nil {
			return nil, err
		}
		s.neighbors = append(s.neighbors, n)
	}
	return s, nil
}

// Start runs every family's FIB manager, every neighbor's FSM and update
// drain, and the inbound listener, until ctx is cancelled. It returns the
// first error any of them reports (beyond context cancellation).
func (s *Speaker) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, fr := range s.families {
		fr := fr
		g.Go(func() error {
			fr.mgr.Run(ctx)
			return nil
		})
	}

	stopAll := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopAll)
	}()

	for _, n := range s.neighbors {
		n := n
		g.Go(func() error {
			n.session.Run(ctx)
			return nil
		})
		g.Go(func() error {
			n.session.DrainUpdates(stopAll)
			return nil
		})
	}

	g.Go(func() error {
		return s.listen(ctx)
	})

	for _, n := range s.neighbors {
		n.start()
	}

	return g.Wait()
}

// listen accepts inbound TCP connections on the speaker's configured
// address and port, matching each to a configured neighbor by remote IP
// (grounded on this speaker's own historical accept loop: match by remote
// address, close unmatched connections, deliver TcpConnectionValid to the
// matched session).
func (s *Speaker) listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.localIP, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("speaker: listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		n := s.matchNeighbor(conn.RemoteAddr())
		if n == nil {
			s.log.Warn("no configured peer for inbound connection, closing",
				zap.Stringer("remote", conn.RemoteAddr()))
			conn.Close()
			continue
		}
		n.session.Accept(conn)
	}
}

func (s *Speaker) matchNeighbor(addr net.Addr) *Neighbor {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	remote, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.neighbors {
		if n.peerIP == remote {
			return n
		}
	}
	return nil
}
