// Package observability holds the Prometheus collectors shared by the
// httpapi, router, fanout, and reaper packages.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DriversConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetrelay", Name: "drivers_connected", Help: "Number of currently connected driver connections.",
	})
	UsersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetrelay", Name: "users_connected", Help: "Number of currently connected user connections.",
	})

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetrelay", Name: "broadcasts_total", Help: "Total broadcast messages fanned out, by event."},
		[]string{"event"},
	)
	UnicastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetrelay", Name: "unicasts_total", Help: "Total unicast messages sent, by event."},
		[]string{"event"},
	)

	RateLimitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetrelay", Name: "rate_limit_rejections_total", Help: "Total updateLocation events rejected by the rate gate.",
	})
	ReaperSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetrelay", Name: "reaper_sweeps_total", Help: "Total reaper ticks executed.",
	})
	DriversRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetrelay", Name: "drivers_removed_total", Help: "Total driver records purged by the reaper or endSession.",
	})
	PingsRoutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetrelay", Name: "pings_routed_total", Help: "Total pingDriver events successfully routed to a live driver.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetrelay", Name: "http_requests_total", Help: "Total HTTP requests handled."},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleetrelay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
