package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	interactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_interactions_total",
			Help: "Total number of question interactions by outcome.",
		},
		[]string{"status"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	llmAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_llm_attempts_total",
			Help: "Total number of language model calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	chartsSelectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_charts_selected_total",
			Help: "Total number of chart directives selected by kind.",
		},
		[]string{"kind"},
	)
	speechRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_speech_requests_total",
			Help: "Total number of speech transcription requests by outcome.",
		},
		[]string{"outcome"},
	)
	archiveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlassist_archive_failures_total",
			Help: "Total number of interactions that could not be archived.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		interactionsTotal,
		stageDurationSeconds,
		llmAttemptsTotal,
		chartsSelectedTotal,
		speechRequestsTotal,
		archiveFailuresTotal,
	)
}

func ObserveInteraction(status string) {
	interactionsTotal.WithLabelValues(status).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveLLMAttempt(provider, outcome string) {
	llmAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveChart(kind string) {
	chartsSelectedTotal.WithLabelValues(kind).Inc()
}

func ObserveSpeech(outcome string) {
	speechRequestsTotal.WithLabelValues(outcome).Inc()
}

func IncrementArchiveFailure() {
	archiveFailuresTotal.Inc()
}
