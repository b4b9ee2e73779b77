package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_ws_connections",
		Help: "Open real-time connections on this process.",
	})

	Bids = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_total",
		Help: "Bids received over the gateway, by result.",
	}, []string{"result"})

	RoomTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_room_transitions_total",
		Help: "Room open/close transitions attempted by the scheduler.",
	}, []string{"kind", "result"})

	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_orders_total",
		Help: "Order creation attempts, by result.",
	}, []string{"result"})
)
