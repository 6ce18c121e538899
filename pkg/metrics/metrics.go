package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the API. A nil *Metrics
// is valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ProfileSyncTotal  *prometheus.CounterVec
	ProfileCacheTotal *prometheus.CounterVec
	AuthFailuresTotal *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ppk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ProfileSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppk_profile_sync_total",
				Help: "Profile sync calls by outcome (created, updated, failed)",
			},
			[]string{"outcome"},
		),
		ProfileCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppk_profile_cache_total",
				Help: "Profile cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppk_auth_failures_total",
				Help: "Rejected requests by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProfileSyncTotal,
		m.ProfileCacheTotal,
		m.AuthFailuresTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Sync(outcome string) {
	if m == nil {
		return
	}
	m.ProfileSyncTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.ProfileCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}
