package monitoring

import "github.com/prometheus/client_golang/prometheus"

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	Interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_interactions_total",
			Help: "Post interactions applied, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FollowToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follow_toggles_total",
			Help: "Follow toggles applied, by resulting state",
		},
		[]string{"state"},
	)

	PostCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_cache_lookups_total",
			Help: "Post cache lookups, by result",
		},
		[]string{"result"},
	)
)

// Register adds every collector to reg. It is called once by the server.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HttpRequestsTotal,
		HttpRequestDuration,
		ActiveConnections,
		Interactions,
		FollowToggles,
		PostCacheLookups,
	)
}
