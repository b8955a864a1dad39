package deliberation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal counts every deliberation request by endpoint and the
// verdict it resulted in ("allow", "deny", or "error" for anything
// rejected before a verdict could be reached).
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "policy_reasoner",
	Subsystem: "deliberation",
	Name:      "requests_total",
	Help:      "Deliberation requests by endpoint and outcome.",
}, []string{"endpoint", "outcome"})

// requestDuration tracks end-to-end handling time per endpoint,
// including the reasoner round-trip.
var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "policy_reasoner",
	Subsystem: "deliberation",
	Name:      "request_duration_seconds",
	Help:      "Deliberation request handling latency, by endpoint.",
	Buckets:   prometheus.DefBuckets,
}, []string{"endpoint"})

// observeRequest records outcome/duration metrics for one endpoint call.
// start is the handler's start time; call via defer.
func observeRequest(endpoint string, start time.Time, outcome string) {
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
