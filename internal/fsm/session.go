package fsm

import (
	"strconv"
	"time"

	"github.com/elauriault/ubgpd-sub000/internal/metrics"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
	"github.com/elauriault/ubgpd-sub000/timer"
)

// holdTimeFloor is the minimum nonzero negotiated hold time RFC 4271 §4.2
// allows; 0 is the separate "keepalives disabled" sentinel.
const holdTimeFloor = 3 * time.Second

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func (s *Session) sendNotification(code, subcode byte, data []byte) {
	n := wire.NotificationMessage{Code: code, Subcode: subcode, Data: data}
	s.send(wire.MsgNotification, wire.EncodeNotification(n))
	metrics.NotificationsTotal.WithLabelValues(s.cfg.PeerAddr, strconv.Itoa(int(code))).Inc()
}

// armTimers starts the hold and keepalive timers at the negotiated rate.
// A negotiated hold time of zero disables both, per this session's pinned
// reading of RFC 4271 §4.4 ("a HoldTime of 0 indicates ... the KeepAlive
// and HoldTimer ... are not started").
func (s *Session) armTimers() {
	s.holdTimer = timer.New(s.negotiatedHoldTime, func() { s.Enqueue(HoldTimerExpires) })
	keepaliveInterval := s.negotiatedHoldTime / 3
	s.keepaliveTimer = timer.New(keepaliveInterval, func() { s.Enqueue(KeepaliveTimerExpires) })
}

// openSentState implements RFC 4271 §8.2.1.3: wait for the peer's OPEN,
// validate it, and negotiate the session's hold time as the smaller of the
// two proposals.
func (s *Session) openSentState(in inbound) {
	switch in.event {
	case BgpOpen:
		s.openRecv = in.open
		if in.open.ASN != s.cfg.PeerASN {
			s.sendNotification(wire.OpenMessageError, wire.BadPeerAS, nil)
			s.stop()
			return
		}
		negotiated := min16(in.open.HoldTime, uint16(s.cfg.HoldTime/time.Second))
		s.negotiatedHoldTime = time.Duration(negotiated) * time.Second
		if s.negotiatedHoldTime != 0 && s.negotiatedHoldTime < holdTimeFloor {
			s.sendNotification(wire.OpenMessageError, wire.UnacceptableHoldTime, nil)
			s.stop()
			return
		}

		s.send(wire.MsgKeepalive, wire.EncodeKeepalive())
		s.connectRetryTimer.Stop()
		s.armTimers()
		s.transition(OpenConfirm)
	case BgpOpenMsgErr:
		s.sendNotification(wire.OpenMessageError, 0, nil)
		s.stop()
	case BgpHeaderErr:
		s.sendNotification(wire.MessageHeaderError, 0, nil)
		s.stop()
	case NotifMsg, NotifMsgVerErr:
		s.stop()
	case TcpConnectionFails:
		s.connectRetryTimer.Reset()
		s.transition(Active)
	case ManualStop:
		s.sendNotification(wire.CeaseError, 0, nil)
		s.stop()
	case ConnectRetryTimerExpires, HoldTimerExpires:
		s.sendNotification(wire.HoldTimerExpiredError, 0, nil)
		s.stop()
	case TcpConnectionValid:
		s.collisionCheck(in.conn)
	default:
	}
}

// openConfirmState implements RFC 4271 §8.2.1.4: wait for the peer's
// KEEPALIVE to confirm the OPEN exchange.
func (s *Session) openConfirmState(in inbound) {
	switch in.event {
	case KeepAliveMsg:
		if s.negotiatedHoldTime != 0 {
			s.holdTimer.Reset()
		}
		s.transition(Established)
	case BgpOpen:
		s.openRecv = in.open
	case NotifMsg, NotifMsgVerErr:
		s.stop()
	case HoldTimerExpires:
		s.sendNotification(wire.HoldTimerExpiredError, 0, nil)
		s.stop()
	case KeepaliveTimerExpires:
		s.send(wire.MsgKeepalive, wire.EncodeKeepalive())
		if s.negotiatedHoldTime != 0 {
			s.keepaliveTimer.Reset()
		}
	case TcpConnectionFails:
		s.connectRetryTimer.Reset()
		s.transition(Idle)
	case OpenCollisionDump:
		s.sendNotification(wire.CeaseError, 0, nil)
		s.stop()
	case ManualStop:
		s.sendNotification(wire.CeaseError, 0, nil)
		s.stop()
	case TcpConnectionValid:
		s.collisionCheck(in.conn)
	default:
	}
}

// establishedState implements RFC 4271 §8.2.1.5. In Established, UPDATE
// traffic flows both ways: received UPDATEs are forwarded to the RIB
// manager via onUpdate, and RIB-driven announcements arrive on s.updates.
func (s *Session) establishedState(in inbound) {
	switch in.event {
	case KeepAliveMsg:
		if s.negotiatedHoldTime != 0 {
			s.holdTimer.Reset()
		}
	case UpdateMsg:
		if s.negotiatedHoldTime != 0 {
			s.holdTimer.Reset()
		}
		if s.onUpdate != nil && in.update != nil {
			if err := s.onUpdate(*in.update); err != nil {
				s.enqueue(inbound{event: UpdateMsgErr, err: err})
				return
			}
		}
	case UpdateMsgErr:
		s.sendNotification(wire.UpdateMessageError, 0, nil)
		s.stop()
	case KeepaliveTimerExpires:
		s.send(wire.MsgKeepalive, wire.EncodeKeepalive())
		if s.negotiatedHoldTime != 0 {
			s.keepaliveTimer.Reset()
		}
	case HoldTimerExpires:
		s.sendNotification(wire.HoldTimerExpiredError, 0, nil)
		s.stop()
	case NotifMsg, NotifMsgVerErr:
		s.stop()
	case TcpConnectionFails:
		s.connectRetryTimer.Reset()
		s.transition(Idle)
	case OpenCollisionDump:
		s.sendNotification(wire.CeaseError, 0, nil)
		s.stop()
	case ManualStop:
		s.sendNotification(wire.CeaseError, 0, nil)
		s.stop()
	case TcpConnectionValid:
		s.collisionCheck(in.conn)
	default:
	}
}

// DrainUpdates runs in its own goroutine until stop is closed; it
// serializes RIB-driven announcements onto the same wire the event loop
// reads from, encoding each Update as an UPDATE message. Updates taken off
// the channel while the session is not Established are dropped.
func (s *Session) DrainUpdates(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case u := <-s.updates:
			if s.state != Established {
				continue
			}
			s.send(wire.MsgUpdate, wire.EncodeUpdate(wire.UpdateMessage(u)))
		}
	}
}
