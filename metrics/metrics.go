package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()

	// CarrierRequests counts outbound carrier calls by carrier, operation and outcome
	CarrierRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "carrier_requests_total", Help: "Outbound carrier API calls."},
		[]string{"carrier", "operation", "outcome"},
	)
	// CarrierDuration records outbound carrier call durations in seconds
	CarrierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "carrier_request_duration_seconds", Help: "Carrier API call duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"carrier", "operation"},
	)
	// TokenRefreshes counts UPS OAuth grants by grant type and outcome
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "carrier_token_refreshes_total", Help: "Carrier OAuth token grants."},
		[]string{"grant", "outcome"},
	)
	// RateCacheLookups counts rate cache lookups by result (hit, miss, error)
	RateCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rate_cache_lookups_total", Help: "Rate quote cache lookups."},
		[]string{"result"},
	)
)

var regOnce sync.Once

// Register registers the collectors on Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(CarrierRequests)
		Registry.MustRegister(CarrierDuration)
		Registry.MustRegister(TokenRefreshes)
		Registry.MustRegister(RateCacheLookups)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// ObserveCarrierCall records one outbound carrier call.
func ObserveCarrierCall(carrier, operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	CarrierRequests.WithLabelValues(carrier, operation, outcome).Inc()
	CarrierDuration.WithLabelValues(carrier, operation).Observe(time.Since(start).Seconds())
}
