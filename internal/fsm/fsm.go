package fsm

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/elauriault/ubgpd-sub000/internal/metrics"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
	"github.com/elauriault/ubgpd-sub000/timer"
)

// Port is the well-known BGP transport port.
const Port = 179

const defaultConnectRetryTime = 120 * time.Second

// Config carries everything a session needs to know about itself and the
// peer before the first connection attempt.
type Config struct {
	LocalASN  uint16
	LocalRID  [4]byte
	PeerASN   uint16
	PeerAddr  netAddr
	HoldTime  time.Duration
	Passive   bool
	Caps      []wire.Capability
}

type netAddr = string

// Update is one decision the RIB manager hands to an Established session:
// an UPDATE message body ready to send as-is. internal/rib is responsible
// for tailoring Attrs to this peer (eBGP next-hop rewrite, AS prepend,
// iBGP no-reflect) before handing it off.
type Update wire.UpdateMessage

// inbound bundles an Event with whatever wire data prompted it, so the
// single-goroutine dispatch loop never races with the reader goroutine
// over a shared "last received message" field.
type inbound struct {
	event  Event
	err    error
	conn   net.Conn
	open   *wire.OpenMessage
	update *wire.UpdateMessage
}

// Session drives one peer's BGP finite state machine: it owns the
// transport connection, the three mandatory timers, and the channel that
// serializes every event (timer fire, socket read, administrative command)
// into a single goroutine, as RFC 4271 §8 describes. RIB-driven
// announcements arrive on a separate updates channel drained by
// DrainUpdates.
type Session struct {
	cfg    Config
	log    *zap.Logger
	events chan inbound

	state               State
	connectRetryCounter int
	connectRetryTimer   *timer.Timer
	holdTimer           *timer.Timer
	keepaliveTimer      *timer.Timer
	negotiatedHoldTime  time.Duration

	conn         net.Conn
	outgoingConn net.Conn

	openSent *wire.OpenMessage
	openRecv *wire.OpenMessage

	updates  chan Update // from internal/rib, consumed only while Established
	onState  func(State)
	onUpdate func(wire.UpdateMessage) error
}

// OnUpdate registers the callback invoked for every structurally valid
// UPDATE received while Established, normally internal/rib's Adj-RIB-In
// ingest. A non-nil return is a semantic validation failure (spec.md §7
// "UPDATE semantics ... NOTIFICATION{UpdateMessageError}") and tears the
// session down exactly like a wire-level decode error.
func (s *Session) OnUpdate(f func(wire.UpdateMessage) error) { s.onUpdate = f }

// New creates a session in the Idle state. It does not dial or listen
// until Run processes a start event.
func New(cfg Config, log *zap.Logger) *Session {
	return &Session{
		cfg:     cfg,
		log:     log.With(zap.String("peer", cfg.PeerAddr)),
		events:  make(chan inbound, 16),
		updates: make(chan Update, 64),
		state:   Idle,
	}
}

// OnStateChange registers a callback invoked after every transition, used
// by internal/speaker to update its neighbor table and by internal/metrics
// to export the per-peer state gauge.
func (s *Session) OnStateChange(f func(State)) { s.onState = f }

// Updates returns the channel the RIB manager should send Update values
// on; sends are only consumed while the session is Established and are
// dropped otherwise.
func (s *Session) Updates() chan<- Update { return s.updates }

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// OpenRecv returns the peer's received OPEN message. It is nil before
// OpenSent completes and is never mutated again once set, so it is safe
// to read from outside the event loop once the state-change callback has
// reported OpenConfirm or Established.
func (s *Session) OpenRecv() *wire.OpenMessage { return s.openRecv }

// LocalASN returns the configured local ASN, used by callers that need to
// decide eBGP vs iBGP behavior without re-deriving it from Config.
func (s *Session) LocalASN() uint16 { return s.cfg.LocalASN }

// PeerASN returns the configured (pre-negotiation) peer ASN.
func (s *Session) PeerASN() uint16 { return s.cfg.PeerASN }

// Enqueue delivers an externally generated event (ManualStart, ManualStop,
// a completed inbound TCP accept) to the session's event loop.
func (s *Session) Enqueue(e Event) {
	s.enqueue(inbound{event: e})
}

func (s *Session) enqueue(in inbound) {
	select {
	case s.events <- in:
	default:
		s.log.Warn("event queue full, dropping event", zap.String("event", in.event.String()))
	}
}

// Accept hands the session an inbound TCP connection accepted by the
// speaker's listener, to be arbitrated against any outgoing attempt in
// progress (collision resolution, RFC 4271 §6.8). Safe to call from the
// listener's goroutine; the connection itself is not touched until the
// event loop processes it.
func (s *Session) Accept(conn net.Conn) {
	s.enqueue(inbound{event: TcpConnectionValid, conn: conn})
}

// Run processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeConn()
			return
		case in := <-s.events:
			s.dispatch(in)
		}
	}
}

func (s *Session) dispatch(in inbound) {
	if in.err != nil {
		s.log.Debug("event", zap.String("event", in.event.String()), zap.String("state", s.state.String()), zap.Error(in.err))
	} else {
		s.log.Debug("event", zap.String("event", in.event.String()), zap.String("state", s.state.String()))
	}
	switch s.state {
	case Idle:
		s.idle(in.event)
	case Connect:
		s.connect(in)
	case Active:
		s.active(in)
	case OpenSent:
		s.openSentState(in)
	case OpenConfirm:
		s.openConfirmState(in)
	case Established:
		s.establishedState(in)
	}
}

func (s *Session) transition(next State) {
	s.log.Info("state transition", zap.String("from", s.state.String()), zap.String("to", next.String()))
	s.state = next
	if s.onState != nil {
		s.onState(next)
	}
}

// idle implements RFC 4271 §8.2.1.1: start events allocate resources,
// arm the ConnectRetryTimer, and attempt a connection; everything else is
// ignored.
func (s *Session) idle(e Event) {
	switch e {
	case ManualStart, AutomaticStart:
		s.connectRetryCounter = 0
		s.connectRetryTimer = timer.New(defaultConnectRetryTime, func() { s.Enqueue(ConnectRetryTimerExpires) })
		if !s.cfg.Passive {
			go s.dial()
		}
		s.transition(Connect)
	default:
	}
}

func (s *Session) dial() {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", s.cfg.PeerAddr, Port), defaultConnectRetryTime)
	if err != nil {
		s.log.Debug("dial failed", zap.Error(err))
		return
	}
	s.outgoingConn = conn
	s.Enqueue(TcpConnectionConfirmed)
}

// connect implements RFC 4271 §8.2.1.2.
func (s *Session) connect(in inbound) {
	switch in.event {
	case TcpConnectionConfirmed, TcpConnectionValid:
		s.connectRetryTimer.Stop()
		s.resolveConnection(in.conn)
		s.sendOpen()
		go s.reader(s.conn)
		s.transition(OpenSent)
	case ConnectRetryTimerExpires:
		s.connectRetryTimer.Reset()
		if !s.cfg.Passive {
			go s.dial()
		}
		s.transition(Connect)
	case TcpConnectionFails:
		s.connectRetryTimer.Reset()
		s.transition(Active)
	case ManualStop:
		s.stop()
	default:
	}
}

// active implements RFC 4271 §8.2.1.2's Active-state behavior: keep
// waiting for an incoming connection, or retry dialing when the timer
// expires.
func (s *Session) active(in inbound) {
	switch in.event {
	case TcpConnectionConfirmed, TcpConnectionValid:
		s.connectRetryTimer.Stop()
		s.resolveConnection(in.conn)
		s.sendOpen()
		go s.reader(s.conn)
		s.transition(OpenSent)
	case ConnectRetryTimerExpires:
		s.connectRetryTimer.Reset()
		if !s.cfg.Passive {
			go s.dial()
		}
		s.transition(Connect)
	case TcpConnectionFails:
		s.connectRetryTimer.Reset()
		s.transition(Idle)
	case ManualStop:
		s.stop()
	default:
	}
}

// resolveConnection picks the connection to carry the session forward.
// incoming, if non-nil, is the connection just delivered by Accept; it
// takes priority over an in-flight outbound dial, mirroring how most
// implementations prefer not to race their own dial against the peer's.
func (s *Session) resolveConnection(incoming net.Conn) {
	if incoming != nil {
		s.conn = incoming
		if s.outgoingConn != nil {
			s.outgoingConn.Close()
			s.outgoingConn = nil
		}
		return
	}
	s.conn = s.outgoingConn
	s.outgoingConn = nil
}

// collisionCheck runs when a second TCP connection arrives for this peer
// while a first is already past Connect/Active. The side with the lower
// BGP identifier gives up (RFC 4271 §6.8): if the already-known remote
// identifier (from this session's received OPEN) is lower than our own,
// the newcomer is closed and the existing session continues; otherwise the
// newcomer is closed and the existing session drops itself via
// OpenCollisionDump. Before any OPEN has been received the newcomer is
// simply closed.
func (s *Session) collisionCheck(newConn net.Conn) {
	if s.openRecv == nil {
		newConn.Close()
		return
	}
	remoteRID := s.openRecv.RouterID.As4()
	if lowerRID(remoteRID, s.cfg.LocalRID) {
		newConn.Close()
		return
	}
	newConn.Close()
	s.Enqueue(OpenCollisionDump)
}

func lowerRID(a, b [4]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (s *Session) sendOpen() {
	holdSecs := uint16(s.cfg.HoldTime / time.Second)
	m := wire.OpenMessage{
		Version:  wire.Version,
		ASN:      s.cfg.LocalASN,
		HoldTime: holdSecs,
		RouterID: ridAddr(s.cfg.LocalRID),
		Caps:     s.cfg.Caps,
	}
	s.openSent = &m
	s.send(wire.MsgOpen, wire.EncodeOpen(m))
}

func (s *Session) send(t wire.MsgType, body []byte) {
	frame, err := wire.EncodeFrame(t, body)
	if err != nil {
		s.log.Error("encode frame", zap.Error(err))
		return
	}
	if s.conn == nil {
		return
	}
	if _, err := s.conn.Write(frame); err != nil {
		s.log.Debug("write failed", zap.Error(err))
		s.Enqueue(TcpConnectionFails)
		return
	}
	metrics.MessagesTotal.WithLabelValues(s.cfg.PeerAddr, "sent", t.String()).Inc()
}

func (s *Session) stop() {
	s.closeConn()
	if s.connectRetryTimer != nil {
		s.connectRetryTimer.Stop()
	}
	if s.holdTimer != nil {
		s.holdTimer.Stop()
	}
	if s.keepaliveTimer != nil {
		s.keepaliveTimer.Stop()
	}
	s.openRecv, s.openSent = nil, nil
	s.transition(Idle)
}

func ridAddr(rid [4]byte) netip.Addr {
	return netip.AddrFrom4(rid)
}

func (s *Session) closeConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.outgoingConn != nil {
		s.outgoingConn.Close()
		s.outgoingConn = nil
	}
}
