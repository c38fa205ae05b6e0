// Package fsm implements the per-peer BGP finite state machine (RFC 4271
// §8): the event-driven progression from Idle through Established, timer
// management, collision resolution, and announcement encoding for routes
// handed to it by internal/rib.
package fsm

import "fmt"

// State is one of the six BGP session states.
type State int

const (
	Idle State = iota
	Connect
	Active
	OpenSent
	OpenConfirm
	Established
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connect:
		return "Connect"
	case Active:
		return "Active"
	case OpenSent:
		return "OpenSent"
	case OpenConfirm:
		return "OpenConfirm"
	case Established:
		return "Established"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is one input to the FSM, named after RFC 4271 §8.1's event list.
type Event int

const (
	ManualStart Event = iota
	AutomaticStart
	ManualStop
	AutomaticStop
	ConnectRetryTimerExpires
	HoldTimerExpires
	KeepaliveTimerExpires
	TcpConnectionValid
	TcpConnectionConfirmed
	TcpConnectionFails
	BgpOpen
	BgpOpenMsgErr
	BgpHeaderErr
	NotifMsg
	NotifMsgVerErr
	KeepAliveMsg
	UpdateMsg
	UpdateMsgErr
	OpenCollisionDump
	RibUpdate
)

func (e Event) String() string {
	switch e {
	case ManualStart:
		return "ManualStart"
	case AutomaticStart:
		return "AutomaticStart"
	case ManualStop:
		return "ManualStop"
	case AutomaticStop:
		return "AutomaticStop"
	case ConnectRetryTimerExpires:
		return "ConnectRetryTimerExpires"
	case HoldTimerExpires:
		return "HoldTimerExpires"
	case KeepaliveTimerExpires:
		return "KeepaliveTimerExpires"
	case TcpConnectionValid:
		return "TcpConnectionValid"
	case TcpConnectionConfirmed:
		return "TcpConnectionConfirmed"
	case TcpConnectionFails:
		return "TcpConnectionFails"
	case BgpOpen:
		return "BgpOpen"
	case BgpOpenMsgErr:
		return "BgpOpenMsgErr"
	case BgpHeaderErr:
		return "BgpHeaderErr"
	case NotifMsg:
		return "NotifMsg"
	case NotifMsgVerErr:
		return "NotifMsgVerErr"
	case KeepAliveMsg:
		return "KeepAliveMsg"
	case UpdateMsg:
		return "UpdateMsg"
	case UpdateMsgErr:
		return "UpdateMsgErr"
	case OpenCollisionDump:
		return "OpenCollisionDump"
	case RibUpdate:
		return "RibUpdate"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}
