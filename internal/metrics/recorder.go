// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics registers the Prometheus collectors of the recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecorderRunsTotal counts finished runs by recorder kind and outcome
	// (completed, user_stopped, or the error classification).
	RecorderRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_recorder_runs_total",
		Help: "Total recorder runs by kind and outcome",
	}, []string{"kind", "outcome"})

	// RecorderActive is 1 while a recorder of the given kind is running.
	RecorderActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamrec_recorder_active",
		Help: "Whether a recorder of the given kind is currently running",
	}, []string{"kind"})

	RecorderStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_recorder_state_transitions_total",
		Help: "Recorder lifecycle transitions by target state",
	}, []string{"state"})

	RecorderDetachedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrec_recorder_detached_total",
		Help: "Workers that did not exit within the stop timeout",
	})

	// ReadinessLatency measures time from run start to the readiness event.
	ReadinessLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamrec_recorder_readiness_seconds",
		Help:    "Time from run start until playable output exists",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"kind"})

	DirectBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrec_direct_bytes_total",
		Help: "Bytes written by the direct download recorder",
	})

	DirectProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrec_direct_progress_percent",
		Help: "Progress of the current direct download (0-100, -1 when size unknown)",
	})
)

// ObserveRun records the outcome of a finished run.
func ObserveRun(kind, outcome string) {
	RecorderRunsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetActive flags the recorder kind as running or idle.
func SetActive(kind string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	RecorderActive.WithLabelValues(kind).Set(v)
}

// ObserveReadiness records how long a run took to produce playable output.
func ObserveReadiness(kind string, since time.Time) {
	ReadinessLatency.WithLabelValues(kind).Observe(time.Since(since).Seconds())
}
