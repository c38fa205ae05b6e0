// Package metrics declares the prometheus collectors the speaker exports:
// per-peer message counters, a state-transition gauge, and RIB size gauges
// (SPEC_FULL.md "AMBIENT STACK").
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbgpd_messages_total",
			Help: "BGP messages sent or received, by peer and direction.",
		},
		[]string{"peer", "direction", "type"},
	)

	PeerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kbgpd_peer_state",
			Help: "Current FSM state per peer (0=Idle .. 5=Established).",
		},
		[]string{"peer"},
	)

	RIBRoutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kbgpd_rib_routes",
			Help: "Number of destinations currently held in Loc-RIB, by address family.",
		},
		[]string{"af"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbgpd_notifications_total",
			Help: "NOTIFICATION messages sent, by peer and error code.",
		},
		[]string{"peer", "code"},
	)
)

// Register installs every collector declared above. Safe to call once per
// process; a second call against the default registry would panic on the
// duplicate registration, matching prometheus's own contract.
func Register() {
	prometheus.MustRegister(MessagesTotal, PeerState, RIBRoutes, NotificationsTotal)
}
