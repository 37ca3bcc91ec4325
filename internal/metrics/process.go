// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_process_start_total",
		Help: "External tool process starts by tool and result",
	}, []string{"tool", "result"})

	procExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_process_exit_total",
		Help: "External tool process exits by tool and result",
	}, []string{"tool", "result"}) // result=ok|nonzero|interrupted

	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_process_terminate_total",
		Help: "Signals sent to owned process groups by result",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_process_terminate_wait_total",
		Help: "How terminated processes finished",
	}, []string{"outcome"}) // outcome=graceful|forced|stuck
)

// IncProcStart records a process start attempt.
func IncProcStart(tool, result string) {
	procStarts.WithLabelValues(tool, result).Inc()
}

// IncProcExit records a process exit.
func IncProcExit(tool, result string) {
	procExits.WithLabelValues(tool, result).Inc()
}

// IncProcTerminate records a termination signal delivery.
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process ended.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}
