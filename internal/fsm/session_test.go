package fsm

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/elauriault/ubgpd-sub000/internal/wire"
)

// readFrame reads one complete frame off conn, blocking until enough bytes
// arrive. Mirrors the accumulation loop internal/fsm's own reader uses.
func readFrame(t *testing.T, conn net.Conn) wire.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		frame, _, err := wire.Decode(buf)
		if err == nil {
			return frame
		}
		if err != wire.ErrNeedMore {
			t.Fatalf("decode error: %v", err)
		}
		n, err := conn.Read(tmp)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		buf = append(buf, tmp[:n]...)
	}
}

func writeFrame(t *testing.T, conn net.Conn, typ wire.MsgType, body []byte) {
	t.Helper()
	frame, err := wire.EncodeFrame(typ, body)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitForState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

// TestHandshakeReachesEstablished drives a full OPEN/KEEPALIVE exchange over
// an in-memory pipe standing in for the accepted TCP connection, and checks
// that hold time negotiation picks the smaller of the two proposals (RFC
// 4271 §4.2).
func TestHandshakeReachesEstablished(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	states := make(chan State, 8)
	sess := New(Config{
		LocalASN: 65000,
		LocalRID: [4]byte{1, 1, 1, 1},
		PeerASN:  65100,
		PeerAddr: "192.0.2.1",
		HoldTime: 90 * time.Second,
		Passive:  true,
	}, zap.NewNop())
	sess.OnStateChange(func(s State) { states <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.Enqueue(ManualStart)
	waitForState(t, states, Connect)
	sess.Accept(server)

	openFrame := readFrame(t, client)
	if openFrame.Type != wire.MsgOpen {
		t.Fatalf("expected OPEN, got %s", openFrame.Type)
	}
	localOpen, err := wire.DecodeOpen(openFrame.Body)
	if err != nil {
		t.Fatalf("decode open: %v", err)
	}
	if localOpen.HoldTime != 90 {
		t.Fatalf("expected advertised hold time 90, got %d", localOpen.HoldTime)
	}

	remoteOpen := wire.OpenMessage{
		Version:  wire.Version,
		ASN:      65100,
		HoldTime: 30,
		RouterID: netip.MustParseAddr("9.9.9.9"),
	}
	writeFrame(t, client, wire.MsgOpen, wire.EncodeOpen(remoteOpen))

	kaFrame := readFrame(t, client)
	if kaFrame.Type != wire.MsgKeepalive {
		t.Fatalf("expected KEEPALIVE after OPEN exchange, got %s", kaFrame.Type)
	}

	writeFrame(t, client, wire.MsgKeepalive, wire.EncodeKeepalive())
	waitForState(t, states, Established)

	if sess.State() != Established {
		t.Fatalf("expected session state Established, got %s", sess.State())
	}
	if sess.OpenRecv() == nil || sess.OpenRecv().ASN != 65100 {
		t.Fatalf("expected OpenRecv to carry the peer's OPEN")
	}
	if sess.negotiatedHoldTime != 30*time.Second {
		t.Fatalf("expected negotiated hold time 30s (the smaller proposal), got %s", sess.negotiatedHoldTime)
	}
}

// TestBadPeerASNRejectsOpen checks that an OPEN advertising an ASN other
// than the configured peer ASN is rejected with OPEN Message Error /
// BadPeerAS and the session drops back to Idle (RFC 4271 §6.2).
func TestBadPeerASNRejectsOpen(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	states := make(chan State, 8)
	sess := New(Config{
		LocalASN: 65000,
		LocalRID: [4]byte{1, 1, 1, 1},
		PeerASN:  65100,
		PeerAddr: "192.0.2.1",
		HoldTime: 90 * time.Second,
		Passive:  true,
	}, zap.NewNop())
	sess.OnStateChange(func(s State) { states <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.Enqueue(ManualStart)
	waitForState(t, states, Connect)
	sess.Accept(server)
	readFrame(t, client) // our OPEN

	wrongOpen := wire.OpenMessage{
		Version:  wire.Version,
		ASN:      65199,
		HoldTime: 30,
		RouterID: netip.MustParseAddr("9.9.9.9"),
	}
	writeFrame(t, client, wire.MsgOpen, wire.EncodeOpen(wrongOpen))

	notifFrame := readFrame(t, client)
	if notifFrame.Type != wire.MsgNotification {
		t.Fatalf("expected NOTIFICATION, got %s", notifFrame.Type)
	}
	n, err := wire.DecodeNotification(notifFrame.Body)
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Code != wire.OpenMessageError || n.Subcode != wire.BadPeerAS {
		t.Fatalf("expected OpenMessageError/BadPeerAS, got code=%d subcode=%d", n.Code, n.Subcode)
	}
	waitForState(t, states, Idle)
}

// TestUpdateSemanticErrorTearsDownSession checks that a structurally valid
// UPDATE whose semantic validation fails in the registered OnUpdate
// callback produces a NOTIFICATION{UpdateMessageError} exactly like a
// wire-level decode failure would.
func TestUpdateSemanticErrorTearsDownSession(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	states := make(chan State, 8)
	sess := New(Config{
		LocalASN: 65000,
		LocalRID: [4]byte{1, 1, 1, 1},
		PeerASN:  65100,
		PeerAddr: "192.0.2.1",
		HoldTime: 90 * time.Second,
		Passive:  true,
	}, zap.NewNop())
	sess.OnStateChange(func(s State) { states <- s })
	sess.OnUpdate(func(wire.UpdateMessage) error {
		return &wire.UpdateError{Subcode: wire.InvalidOriginAttribute}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.Enqueue(ManualStart)
	waitForState(t, states, Connect)
	sess.Accept(server)
	readFrame(t, client) // our OPEN

	remoteOpen := wire.OpenMessage{Version: wire.Version, ASN: 65100, HoldTime: 30, RouterID: netip.MustParseAddr("9.9.9.9")}
	writeFrame(t, client, wire.MsgOpen, wire.EncodeOpen(remoteOpen))
	readFrame(t, client) // our KEEPALIVE
	writeFrame(t, client, wire.MsgKeepalive, wire.EncodeKeepalive())
	waitForState(t, states, Established)

	writeFrame(t, client, wire.MsgUpdate, wire.EncodeUpdate(wire.UpdateMessage{}))

	notifFrame := readFrame(t, client)
	if notifFrame.Type != wire.MsgNotification {
		t.Fatalf("expected NOTIFICATION, got %s", notifFrame.Type)
	}
	n, err := wire.DecodeNotification(notifFrame.Body)
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Code != wire.UpdateMessageError {
		t.Fatalf("expected UpdateMessageError, got code=%d", n.Code)
	}
	waitForState(t, states, Idle)
}
