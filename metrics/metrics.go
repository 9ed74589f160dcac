package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ResolutionsTotal counts finished resolutions by the tier that produced
	// the address.
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "resolutions_total",
		Help:      "Total completed address resolutions, labeled by fallback level.",
	}, []string{"fallback_level"})

	// TierAttemptsTotal counts search-tier attempts.
	TierAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "tier_attempts_total",
		Help:      "Total search-tier attempts, labeled by tier.",
	}, []string{"tier"})

	// TierRejectsTotal counts candidates a tier produced that failed an
	// acceptance gate.
	TierRejectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "tier_rejects_total",
		Help:      "Total rejected tier candidates, labeled by tier and rejection reason.",
	}, []string{"tier", "reason"})

	// GatewayCallsTotal counts model gateway calls by outcome.
	GatewayCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "gateway_calls_total",
		Help:      "Total model gateway logical calls, labeled by outcome.",
	}, []string{"outcome"})

	// GatewayRetriesTotal counts transport-level retries inside the gateway.
	GatewayRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "gateway_retries_total",
		Help:      "Total transport retries performed by the model gateway.",
	})

	// GatewayCallDuration is the per-attempt model call latency.
	GatewayCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "gateway_call_duration_seconds",
		Help:      "Model call latency per attempt, labeled by grounding mode.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 90},
	}, []string{"grounding"})

	// DNSChecksTotal counts advisory deliverability checks by outcome.
	DNSChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "dns_checks_total",
		Help:      "Total advisory DNS deliverability checks, labeled by outcome.",
	}, []string{"outcome"})

	// RevisionsTotal counts draft revision calls.
	RevisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "router",
		Name:      "revisions_total",
		Help:      "Total draft revision requests processed.",
	})
)

// Register registers router metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ResolutionsTotal,
			TierAttemptsTotal,
			TierRejectsTotal,
			GatewayCallsTotal,
			GatewayRetriesTotal,
			GatewayCallDuration,
			DNSChecksTotal,
			RevisionsTotal,
		)
	})
}
