package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhub",
		Name:      "http_requests_total",
		Help:      "Total API requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamhub",
		Name:      "http_request_duration_seconds",
		Help:      "API request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhub",
		Name:      "provider_requests_total",
		Help:      "Stream requests to addons by addon id and result status.",
	}, []string{"addon", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamhub",
		Name:      "provider_request_duration_seconds",
		Help:      "Addon stream request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45},
	}, []string{"addon"})

	ProviderStreams = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamhub",
		Name:      "provider_streams",
		Help:      "Number of usable streams returned per addon response.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
	}, []string{"addon"})

	QueriesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamhub",
		Name:      "queries_in_flight",
		Help:      "Stream queries still waiting on at least one addon.",
	})

	ProbeResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhub",
		Name:      "probe_results_total",
		Help:      "Container probe outcomes (matroska, other, inconclusive).",
	}, []string{"result"})

	ProbeCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamhub",
		Name:      "probe_cache_hits_total",
		Help:      "Container probe answers served from cache.",
	})

	RoutesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhub",
		Name:      "playback_routes_total",
		Help:      "Playback routing decisions by terminal kind.",
	}, []string{"kind"})

	HandoffAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhub",
		Name:      "handoff_attempts_total",
		Help:      "External player handoff attempts by player and outcome.",
	}, []string{"player", "outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderStreams,
		QueriesInFlight,
		ProbeResultsTotal,
		ProbeCacheHitsTotal,
		RoutesTotal,
		HandoffAttemptsTotal,
	)
}
