package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeather API call rate per endpoint. Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	ProviderCallDuration *prometheus.HistogramVec

	// Retry attempts against the provider. Watch for: high retries = unstable upstream.
	ProviderRetriesTotal prometheus.Counter

	// Precache installs by result (success/failure). A failure means the new version did not activate.
	PrecacheRunsTotal *prometheus.CounterVec

	// Fetch-intercept outcomes by policy (api/static) and outcome
	// (network, cache_hit, cache_fallback, error).
	FetchInterceptTotal *prometheus.CounterVec

	// Fetches that rode an already in-flight request for the same URL.
	FetchCoalescedTotal prometheus.Counter

	// Background and periodic sync runs by tag and result.
	SyncRunsTotal *prometheus.CounterVec

	// Individual cache entries refreshed during sync, by result.
	SyncEntriesTotal *prometheus.CounterVec

	// Push payloads received and surfaced as notifications.
	PushReceivedTotal prometheus.Counter

	// Notifications actually displayed (after preference and permission gating).
	NotificationsShownTotal prometheus.Counter

	// Auto-refresh scheduler ticks by result.
	SchedulerTicksTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of OpenWeather API calls",
		},
		[]string{"endpoint", "status"},
	)
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerCallDurationSeconds",
			Help:    "OpenWeather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ProviderRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "providerRetriesTotal",
			Help: "Total number of retry attempts for provider calls",
		},
	)
	PrecacheRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "precacheRunsTotal",
			Help: "Static precache installs by result",
		},
		[]string{"result"},
	)
	FetchInterceptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchInterceptTotal",
			Help: "Intercepted fetches by policy (api/static) and outcome",
		},
		[]string{"policy", "outcome"},
	)
	FetchCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchCoalescedTotal",
			Help: "Fetches served by joining an in-flight request for the same URL",
		},
	)
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncRunsTotal",
			Help: "Background/periodic sync runs by tag and result",
		},
		[]string{"tag", "result"},
	)
	SyncEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncEntriesTotal",
			Help: "Cache entries refreshed during sync, by result",
		},
		[]string{"result"},
	)
	PushReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushReceivedTotal",
			Help: "Push payloads received",
		},
	)
	NotificationsShownTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notificationsShownTotal",
			Help: "Notifications displayed after preference and permission gating",
		},
	)
	SchedulerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerTicksTotal",
			Help: "Auto-refresh scheduler ticks by result",
		},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderCallDuration, ProviderRetriesTotal,
		PrecacheRunsTotal, FetchInterceptTotal, FetchCoalescedTotal,
		SyncRunsTotal, SyncEntriesTotal,
		PushReceivedTotal, NotificationsShownTotal,
		SchedulerTicksTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
