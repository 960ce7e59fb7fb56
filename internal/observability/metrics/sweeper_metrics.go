package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepErrorDeadlineExceeded     = "deadline_exceeded"
	SweepErrorSerializationFailure = "serialization_failure"
	SweepErrorLockTimeout          = "db_lock_timeout"
	SweepErrorUniqueViolation      = "unique_violation"
	SweepErrorUnknown              = "unknown"
)

// SweeperMetrics captures the health of the periodic lifecycle sweep.
type SweeperMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry using config labels.
func Sweeper(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nestbill_sweeper_job_runs_total",
		Help:        "Sweeper job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "nestbill_sweeper_job_duration_seconds",
		Help:        "Sweeper job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nestbill_sweeper_job_errors_total",
		Help:        "Sweeper job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nestbill_sweeper_items_processed_total",
		Help:        "Subscriptions advanced by the sweeper.",
		ConstLabels: constLabels,
	}, []string{"job"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nestbill_sweeper_runs_skipped_total",
		Help:        "Sweeper runs skipped because another instance holds the lock.",
		ConstLabels: constLabels,
	}, []string{"job"})

	m := &SweeperMetrics{}
	m.runs, _ = registerCounterVec(registerer, runs)
	m.duration, _ = registerHistogramVec(registerer, duration)
	m.errors, _ = registerCounterVec(registerer, errs)
	m.processed, _ = registerCounterVec(registerer, processed)
	m.skipped, _ = registerCounterVec(registerer, skipped)
	return m
}

// ObserveRun records one job execution.
func (m *SweeperMetrics) ObserveRun(job string, took time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if processed > 0 {
		m.processed.WithLabelValues(job).Add(float64(processed))
	}
	if err != nil {
		m.errors.WithLabelValues(job, ClassifySweepError(err)).Inc()
	}
}

// ObserveSkipped records a run skipped by leader election.
func (m *SweeperMetrics) ObserveSkipped(job string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job).Inc()
}

// ClassifySweepError maps errors onto the reason label set.
func ClassifySweepError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SweepErrorDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return SweepErrorSerializationFailure
		case "55P03":
			return SweepErrorLockTimeout
		case "23505":
			return SweepErrorUniqueViolation
		}
	}
	return SweepErrorUnknown
}
