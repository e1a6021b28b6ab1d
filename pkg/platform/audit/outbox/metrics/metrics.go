package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages.
const (
	StageFetch   = "fetch"
	StagePublish = "publish"
	StageMark    = "mark"
	StagePrune   = "prune"
)

// Metrics instruments the outbox relay. Published entries are labelled by
// event type so issuance and verification throughput can be told apart.
type Metrics struct {
	Pending   prometheus.Gauge
	Published *prometheus.CounterVec
	Failures  *prometheus.CounterVec
	Pruned    prometheus.Counter
	Publish   prometheus.Histogram
	Poll      prometheus.Histogram
}

// New registers the outbox collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	fast := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	return &Metrics{
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "fedcred_outbox_pending",
			Help: "Outbox entries not yet relayed to the broker",
		}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_outbox_published_total",
			Help: "Outbox entries relayed to the broker",
		}, []string{"event_type"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_outbox_failures_total",
			Help: "Relay failures by stage",
		}, []string{"stage"}),
		Pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "fedcred_outbox_pruned_total",
			Help: "Relayed entries deleted after the retention window",
		}),
		Publish: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedcred_outbox_publish_duration_seconds",
			Help:    "Broker produce latency per entry",
			Buckets: fast,
		}),
		Poll: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedcred_outbox_poll_duration_seconds",
			Help:    "Duration of one relay cycle",
			Buckets: fast,
		}),
	}
}

func (m *Metrics) SetPending(count int64) {
	m.Pending.Set(float64(count))
}

func (m *Metrics) IncPublished(eventType string) {
	m.Published.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncFailure(stage string) {
	m.Failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) AddPruned(n int64) {
	if n > 0 {
		m.Pruned.Add(float64(n))
	}
}
