// Package metrics exposes the Prometheus collectors used across the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solstream"

var (
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_resolve_total",
		Help:      "Pool resolutions by outcome venue.",
	}, []string{"venue"})

	ProbeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_probe_errors_total",
		Help:      "Venue probe failures that fell through to the next probe.",
	}, []string{"probe"})

	QuotesBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotes_broadcast_total",
		Help:      "Price quotes fanned out to subscribers.",
	}, []string{"venue", "trigger"})

	QuotesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotes_dropped_total",
		Help:      "Ticks that produced no quote, by reason.",
	}, []string{"reason"})

	PoolSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_subscriptions",
		Help:      "Pool subscriptions currently in the registry.",
	})

	ClientConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_connections",
		Help:      "Open gateway connections.",
	})

	UpstreamEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_events_total",
		Help:      "Upstream connection lifecycle events.",
	}, []string{"kind"})

	NotificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_notifications_dropped_total",
		Help:      "Account notifications dropped because the queue was full.",
	})
)

func init() {
	prometheus.MustRegister(
		ResolveTotal,
		ProbeErrors,
		QuotesBroadcast,
		QuotesDropped,
		PoolSubscriptions,
		ClientConnections,
		UpstreamEvents,
		NotificationsDropped,
	)
}

// Handler 默认 registry 的 /metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
