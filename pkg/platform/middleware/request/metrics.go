package request

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds per-route HTTP instruments. Pass a route func to LatencyMiddleware
// so credential ids in paths do not become label values.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	Responses       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fedcred_http_request_duration_seconds",
			Help:    "HTTP handler latency by route",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_http_responses_total",
			Help: "HTTP responses by route and status class",
		}, []string{"endpoint", "class"}),
	}
}

func (m *Metrics) observe(endpoint string, status int, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
	m.Responses.WithLabelValues(endpoint, statusClass(status)).Inc()
}

// statusClass maps 404 to "4xx", 503 to "5xx".
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
