package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	commerceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "commerce",
			Name:      "calls_total",
			Help:      "Remote commerce API calls by operation and outcome.",
		},
		[]string{"op", "outcome", "status"},
	)
	commerceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "commerce",
			Name:      "call_duration_seconds",
			Help:      "Remote commerce API call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
	checkoutTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "checkout",
			Name:      "transitions_total",
			Help:      "Checkout state transitions by target state.",
		},
		[]string{"state"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Shopper sessions held in memory.",
		},
	)
	evictedSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "sessions",
			Name:      "evicted_total",
			Help:      "Shopper sessions dropped from memory by reason.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, commerceCalls, commerceDuration, checkoutTransitions, activeSessions, evictedSessions)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCommerceCall tracks one adapter round-trip. status is 0 when no response arrived.
func RecordCommerceCall(op string, status int, duration time.Duration, success bool) {
	RegisterMetrics()
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	commerceCalls.WithLabelValues(op, outcome, strconv.Itoa(status)).Inc()
	commerceDuration.WithLabelValues(op, outcome).Observe(duration.Seconds())
}

func RecordCheckoutTransition(state string) {
	RegisterMetrics()
	checkoutTransitions.WithLabelValues(state).Inc()
}

func SetActiveSessions(n int) {
	RegisterMetrics()
	activeSessions.Set(float64(n))
}

// RecordSessionEvictions counts sessions dropped for reason ("idle" or "capacity").
func RecordSessionEvictions(reason string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	evictedSessions.WithLabelValues(reason).Add(float64(n))
}
