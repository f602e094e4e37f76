// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_proc_terminate_total",
		Help: "Signals sent to external process groups by signal and result",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_proc_wait_total",
		Help: "External process exits observed during termination",
	}, []string{"result"})

	procExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_proc_exit_total",
		Help: "Unsupervised external process exits by classification",
	}, []string{"class"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process exited.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}

// IncProcExit records an external process exiting on its own.
func IncProcExit(class string) {
	procExitTotal.WithLabelValues(class).Inc()
}
