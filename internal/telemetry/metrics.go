package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Research pipeline metrics, registered on the default registry.
var (
	RunsTotal *prometheus.CounterVec

	RunDuration prometheus.Histogram

	SearchRequestsTotal *prometheus.CounterVec

	FetchTotal *prometheus.CounterVec

	LLMRequestsTotal *prometheus.CounterVec

	LLMLatency *prometheus.HistogramVec

	SourcesKept prometheus.Histogram

	CircuitBreakerState *prometheus.GaugeVec
)

func init() {
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "runs_total",
			Help:      "Research runs by outcome (ok, no_results, filtered, no_content, cached, canceled)",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "researcher",
			Name:      "run_duration_seconds",
			Help:      "End-to-end research run duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "search_requests_total",
			Help:      "Web search provider calls",
		},
		[]string{"provider", "status"},
	)

	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "fetch_total",
			Help:      "Page fetch attempts by final status (ok, failed, too_short)",
		},
		[]string{"status"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "llm_requests_total",
			Help:      "Language model calls",
		},
		[]string{"provider", "operation", "status"},
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "researcher",
			Name:      "llm_latency_seconds",
			Help:      "Language model call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	SourcesKept = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "researcher",
			Name:      "sources_kept",
			Help:      "Sources surviving fetch and summarize per run",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 7, 10},
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "researcher",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 0.5=half-open, 1=open)",
		},
		[]string{"provider"},
	)

	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		SearchRequestsTotal,
		FetchTotal,
		LLMRequestsTotal,
		LLMLatency,
		SourcesKept,
		CircuitBreakerState,
	)
}

// RecordRun records the outcome and duration of one research run.
func RecordRun(outcome string, d time.Duration) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.Observe(d.Seconds())
}

// RecordSearch counts a search provider call.
func RecordSearch(provider string, err error) {
	SearchRequestsTotal.WithLabelValues(provider, status(err)).Inc()
}

// RecordFetch counts the final state of one source fetch.
func RecordFetch(state string) {
	FetchTotal.WithLabelValues(state).Inc()
}

// RecordLLM counts a model call and observes its latency.
func RecordLLM(provider, operation string, started time.Time, err error) {
	LLMRequestsTotal.WithLabelValues(provider, operation, status(err)).Inc()
	LLMLatency.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

// RecordSourcesKept observes how many sources survived a run.
func RecordSourcesKept(n int) {
	SourcesKept.Observe(float64(n))
}

// SetBreakerState maps a breaker state name to the gauge value.
func SetBreakerState(provider, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 0.5
	}
	CircuitBreakerState.WithLabelValues(provider).Set(v)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
