package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guestbook",
			Name:      "writes_total",
			Help:      "Store writes by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	RealtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guestbook",
			Name:      "realtime_events_total",
			Help:      "Change events published on the feed.",
		},
		[]string{"table", "type"},
	)

	RealtimeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guestbook",
			Name:      "realtime_dropped_total",
			Help:      "Change events dropped because a subscriber or the queue was full.",
		},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guestbook",
			Name:      "realtime_subscribers",
			Help:      "Current change feed subscribers.",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guestbook",
			Name:      "active_sessions",
			Help:      "Visitor sessions held by the registry.",
		},
	)

	SessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guestbook",
			Name:      "sessions_evicted_total",
			Help:      "Sessions closed early because the registry was full.",
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guestbook",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(Writes)
	prometheus.MustRegister(RealtimeEvents)
	prometheus.MustRegister(RealtimeDropped)
	prometheus.MustRegister(Subscribers)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(SessionsEvicted)
	prometheus.MustRegister(RateLimited)
}

// Outcome labels a write result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
