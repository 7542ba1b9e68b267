package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LifecycleMetrics instruments the create and delete sagas.
type LifecycleMetrics struct {
	sagasTotal         *prometheus.CounterVec
	sagaDuration       *prometheus.HistogramVec
	stepDuration       *prometheus.HistogramVec
	sagaRetries        prometheus.Counter
	allocationAttempts prometheus.Histogram
}

// NewLifecycleMetrics creates Prometheus-backed saga metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewLifecycleMetrics() *LifecycleMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &LifecycleMetrics{
		sagasTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "usermgrd_sagas_total",
				Help: "Completed lifecycle sagas by operation and outcome",
			},
			[]string{"operation", "outcome"}, // operation: "create", "delete"
		),
		sagaDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usermgrd_saga_duration_seconds",
				Help:    "End-to-end saga duration by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		stepDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usermgrd_saga_step_duration_seconds",
				Help:    "Individual saga step duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "step"},
		),
		sagaRetries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "usermgrd_saga_retries_total",
				Help: "Create sagas restarted after losing a directory allocation race",
			},
		),
		allocationAttempts: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "usermgrd_allocation_attempts",
				Help:    "Candidate draws needed per uid/gid allocation",
				Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
			},
		),
	}
}

// RecordSaga records a finished saga with its outcome ("ok",
// "failed", "conflict") and total duration.
func (m *LifecycleMetrics) RecordSaga(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sagasTotal.WithLabelValues(operation, outcome).Inc()
	m.sagaDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStep records a single step's duration.
func (m *LifecycleMetrics) RecordStep(operation, step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(operation, step).Observe(duration.Seconds())
}

// RecordRetry records a full-saga restart after a directory conflict.
func (m *LifecycleMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.sagaRetries.Inc()
}

// RecordAllocationAttempts records how many candidate numbers an
// allocation consumed.
func (m *LifecycleMetrics) RecordAllocationAttempts(attempts int) {
	if m == nil {
		return
	}
	m.allocationAttempts.Observe(float64(attempts))
}
