package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerJobReasonDeadlineExceeded = "deadline_exceeded"
	SchedulerJobReasonChainUnavailable = "chain_unavailable"
	SchedulerJobReasonChainRejected    = "chain_rejected"
	SchedulerJobReasonUnknown          = "unknown"
)

const (
	ChargeOutcomeCharged    = "charged"
	ChargeOutcomeNoWallet   = "no_wallet"
	ChargeOutcomeDeferred   = "deferred"
	ChargeOutcomePastDue    = "past_due"
	ChargeOutcomeCanceled   = "canceled"
	ChargeOutcomeLostRace   = "lost_race"
	ChargeOutcomeStoreError = "store_error"
)

// SchedulerMetrics captures charge sweep health signals.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobTimeouts    *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	chargeOutcomes *prometheus.CounterVec
	sweepLockSkips prometheus.Counter
	runLoopLag     prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_scheduler_job_errors_total",
		Help:        "Scheduler job errors by name and reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_scheduler_job_timeouts_total",
		Help:        "Scheduler jobs cut off by their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "meridian_scheduler_job_duration_seconds",
		Help:        "Scheduler job duration by name.",
		ConstLabels: constLabels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"job"})
	chargeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_scheduler_charge_outcomes_total",
		Help:        "Per-subscription charge outcomes.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	sweepLockSkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "meridian_scheduler_sweep_lock_skips_total",
		Help:        "Sweeps skipped because another instance holds the lock.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "meridian_scheduler_run_loop_lag_seconds",
		Help:        "How late the run loop started relative to its schedule.",
		ConstLabels: constLabels,
		Buckets:     prometheus.DefBuckets,
	})

	for _, collector := range []prometheus.Collector{
		jobRuns, jobErrors, jobTimeouts, jobDuration, chargeOutcomes, sweepLockSkips, runLoopLag,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return &SchedulerMetrics{
		jobRuns:        jobRuns,
		jobErrors:      jobErrors,
		jobTimeouts:    jobTimeouts,
		jobDuration:    jobDuration,
		chargeOutcomes: chargeOutcomes,
		sweepLockSkips: sweepLockSkips,
		runLoopLag:     runLoopLag,
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncChargeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.chargeOutcomes.WithLabelValues(outcome).Inc()
}

func (m *SchedulerMetrics) IncSweepLockSkip() {
	if m == nil {
		return
	}
	m.sweepLockSkips.Inc()
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySchedulerJobReason buckets job errors into low-cardinality
// reasons. Chain errors are matched by their sentinel text so this
// package does not depend on the domain packages it observes.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	case strings.Contains(err.Error(), "chain_unavailable"):
		return SchedulerJobReasonChainUnavailable
	case strings.Contains(err.Error(), "chain_rejected"):
		return SchedulerJobReasonChainRejected
	default:
		return SchedulerJobReasonUnknown
	}
}
