// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ready and stop notifications travel over the in-process bus; a drop means
// a subscriber missed a run's readiness or termination.
var (
	BusDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_bus_deliveries_total",
		Help: "Recorder notifications delivered to all subscribers, by topic",
	}, []string{"topic"})

	BusDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_bus_drops_total",
		Help: "Recorder notifications not delivered, by topic and reason",
	}, []string{"topic", "reason"})
)

func IncBusPublished(topic string) {
	BusDeliveriesTotal.WithLabelValues(orUnknown(topic)).Inc()
}

func IncBusDropReason(topic, reason string) {
	BusDropsTotal.WithLabelValues(orUnknown(topic), orUnknown(reason)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
