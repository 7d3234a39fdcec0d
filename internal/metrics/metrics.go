package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the store and the HTTP layer.
type Metrics struct {
	StoreOps        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
	StoreEntries    prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	LiveSessions    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merchant_store_operations_total",
			Help: "Record store operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "merchant_store_operation_duration_seconds",
			Help:    "Backend latency of record store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		StoreEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "merchant_store_entries",
			Help: "Merchants currently held by the record store.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "merchant_live_sessions",
			Help: "Open live detail sessions.",
		}),
	}

	reg.MustRegister(m.StoreOps, m.StoreOpDuration, m.StoreEntries, m.HTTPRequests, m.HTTPDuration, m.LiveSessions)
	return m
}

// NewNop returns collectors registered with a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
