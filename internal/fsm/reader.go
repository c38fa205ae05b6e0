package fsm

import (
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/elauriault/ubgpd-sub000/internal/metrics"
	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

// reader runs for the lifetime of a single TCP connection, translating the
// message stream into events on the session's event channel. It exits
// (and fires TcpConnectionFails) as soon as the connection errors out or
// the peer closes it.
func (s *Session) reader(conn net.Conn) {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		for {
			frame, consumed, ferr := wire.Decode(buf)
			if ferr == wire.ErrNeedMore {
				break
			}
			if ferr != nil {
				s.log.Warn("frame decode error", zap.Error(ferr))
				s.enqueue(inbound{event: BgpHeaderErr, err: ferr})
				return
			}
			buf = buf[consumed:]
			s.handleFrame(frame)
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debug("connection read error", zap.Error(err))
			}
			s.enqueue(inbound{event: TcpConnectionFails})
			return
		}
	}
}

func (s *Session) handleFrame(f wire.Frame) {
	metrics.MessagesTotal.WithLabelValues(s.cfg.PeerAddr, "recv", f.Type.String()).Inc()
	switch f.Type {
	case wire.MsgOpen:
		open, err := wire.DecodeOpen(f.Body)
		if err != nil {
			s.enqueue(inbound{event: BgpOpenMsgErr, err: err})
			return
		}
		s.enqueue(inbound{event: BgpOpen, open: &open})
	case wire.MsgKeepalive:
		if _, err := wire.DecodeKeepalive(f.Body); err != nil {
			s.enqueue(inbound{event: BgpHeaderErr, err: err})
			return
		}
		s.enqueue(inbound{event: KeepAliveMsg})
	case wire.MsgUpdate:
		u, err := wire.DecodeUpdate(f.Body)
		if err != nil {
			s.enqueue(inbound{event: UpdateMsgErr, err: err})
			return
		}
		s.enqueue(inbound{event: UpdateMsg, update: &u})
	case wire.MsgNotification:
		n, err := wire.DecodeNotification(f.Body)
		if err != nil {
			s.enqueue(inbound{event: NotifMsgVerErr, err: err})
			return
		}
		s.log.Info("received notification", zap.Uint8("code", n.Code), zap.Uint8("subcode", n.Subcode))
		s.enqueue(inbound{event: NotifMsg})
	}
}
