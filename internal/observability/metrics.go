package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_http_requests_total",
			Help: "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sqlassist_http_request_duration_seconds",
			Help: "HTTP request latency by route. Ask routes include the model call and the query.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 90},
		},
		[]string{"method", "route"},
	)

	httpInFlightRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sqlassist_http_in_flight_requests",
		Help: "HTTP requests currently being served.",
	})

	httpPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sqlassist_http_panics_total",
		Help: "Handler panics recovered by the server.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpInFlightRequests, httpPanicsTotal)
}
