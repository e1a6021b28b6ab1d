package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the credential engine.
type Metrics struct {
	CredentialsIssued   *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	Renewals            prometheus.Counter
	Verifications       *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
	BulkBatchSize       prometheus.Histogram
	ReadRetries         prometheus.Counter
	SweepExpired        prometheus.Counter
	SweepDuration       prometheus.Histogram
	StatsCacheHits      *prometheus.CounterVec
	Exports             *prometheus.CounterVec

	// Shard contention of the in-memory transaction boundary
	ShardLockWait         prometheus.Histogram
	ShardLockAcquisitions prometheus.Counter
}

// New registers all credential collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_credentials_issued_total",
			Help: "Total number of credentials issued, labeled by subject type",
		}, []string{"subject_type"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_credential_transitions_total",
			Help: "Lifecycle transitions applied, labeled by trigger and target status",
		}, []string{"trigger", "to"}),
		Renewals: f.NewCounter(prometheus.CounterOpts{
			Name: "fedcred_credential_renewals_total",
			Help: "Total number of successful renewals",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_verifications_total",
			Help: "Verification outcomes, labeled by channel and result reason (empty reason is valid)",
		}, []string{"channel", "result", "reason"}),
		VerificationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedcred_verification_latency_seconds",
			Help:    "Time to complete one verification unit including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		BulkBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedcred_bulk_verification_batch_size",
			Help:    "Number of ids per bulk verification request",
			Buckets: []float64{1, 5, 10, 20, 30, 40, 50},
		}),
		ReadRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "fedcred_read_retries_total",
			Help: "Retries of idempotent reads after a transient store failure",
		}),
		SweepExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "fedcred_sweep_expired_total",
			Help: "Credentials transitioned to expired by the sweep",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedcred_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep run",
			Buckets: prometheus.DefBuckets,
		}),
		StatsCacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_stats_cache_requests_total",
			Help: "Stats cache lookups, labeled by outcome (hit, miss, error)",
		}, []string{"outcome"}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fedcred_exports_total",
			Help: "Artifact exports, labeled by kind and result",
		}, []string{"kind", "result"}),
		ShardLockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedcred_credential_shard_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a credential shard lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ShardLockAcquisitions: f.NewCounter(prometheus.CounterOpts{
			Name: "fedcred_credential_shard_lock_acquisitions_total",
			Help: "Total number of credential shard lock acquisitions",
		}),
	}
}

func (m *Metrics) IncIssued(subjectType string) {
	m.CredentialsIssued.WithLabelValues(subjectType).Inc()
}

func (m *Metrics) IncTransition(trigger, to string) {
	m.Transitions.WithLabelValues(trigger, to).Inc()
}

func (m *Metrics) IncRenewal() {
	m.Renewals.Inc()
}

func (m *Metrics) ObserveVerification(channel string, valid bool, reason string, seconds float64) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.Verifications.WithLabelValues(channel, result, reason).Inc()
	m.VerificationLatency.Observe(seconds)
}

func (m *Metrics) ObserveBulkBatch(size int) {
	m.BulkBatchSize.Observe(float64(size))
}

func (m *Metrics) IncReadRetry() {
	m.ReadRetries.Inc()
}

func (m *Metrics) ObserveSweep(expired int, seconds float64) {
	m.SweepExpired.Add(float64(expired))
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) IncStatsCache(outcome string) {
	m.StatsCacheHits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncExport(kind, result string) {
	m.Exports.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveShardLockWait(seconds float64) {
	m.ShardLockWait.Observe(seconds)
	m.ShardLockAcquisitions.Inc()
}
