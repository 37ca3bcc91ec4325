// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xgrab_jobs_started_total",
		Help: "Total number of download jobs submitted",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_jobs_finished_total",
		Help: "Total number of download jobs that reached a terminal status",
	}, []string{"status"}) // status=completed|error|cancelled

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xgrab_jobs_active",
		Help: "Number of jobs currently held in the progress registry",
	})

	jobLifecycleOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_job_lifecycle_ops_total",
		Help: "Pause/resume/cancel requests by outcome",
	}, []string{"op", "outcome"}) // outcome=ok|rejected|not_found

	selections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_stream_selections_total",
		Help: "Stream selections by mode and shape",
	}, []string{"mode", "shape"}) // shape=combined|separate|none

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xgrab_stage_duration_seconds",
		Help:    "Duration of job stages",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 14), // 250ms to ~68min
	}, []string{"stage", "result"})

	ledgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_ledger_writes_total",
		Help: "History ledger persistence attempts by backend and result",
	}, []string{"backend", "result"})
)

// IncJobStarted counts a submitted job and bumps the active gauge.
func IncJobStarted() {
	jobsStarted.Inc()
	jobsActive.Inc()
}

// IncJobFinished records a terminal job status.
func IncJobFinished(status string) {
	jobsFinished.WithLabelValues(status).Inc()
}

// IncJobActive bumps the active gauge when an entry returns to the registry.
func IncJobActive() {
	jobsActive.Inc()
}

// DecJobActive drops the active gauge when an entry leaves the registry.
func DecJobActive() {
	jobsActive.Dec()
}

// IncLifecycleOp records a pause/resume/cancel request outcome.
func IncLifecycleOp(op, outcome string) {
	jobLifecycleOps.WithLabelValues(op, outcome).Inc()
}

// IncSelection records the outcome of a stream selection.
func IncSelection(mode, shape string) {
	selections.WithLabelValues(mode, shape).Inc()
}

// ObserveStage records how long a job stage took.
func ObserveStage(stage, result string, d time.Duration) {
	stageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

// IncLedgerWrite records a ledger persistence attempt.
func IncLedgerWrite(backend, result string) {
	ledgerWrites.WithLabelValues(backend, result).Inc()
}
