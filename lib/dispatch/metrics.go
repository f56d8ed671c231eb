// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sybila/biodivine/sdk/go/biodivine"
)

type metrics struct {
	tasks    *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	running  prometheus.Gauge
	seconds  prometheus.Histogram
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{}
	m.tasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biodivine",
		Subsystem: "dispatch",
		Name:      "tasks_total",
		Help:      "Number of tasks dispatched, by topology.",
	}, []string{"topology"})
	reg.MustRegister(m.tasks)
	m.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biodivine",
		Subsystem: "dispatch",
		Name:      "outcomes_total",
		Help:      "Number of finished tasks, by outcome.",
	}, []string{"reason"})
	reg.MustRegister(m.outcomes)
	m.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "biodivine",
		Subsystem: "dispatch",
		Name:      "processes_running",
		Help:      "Number of worker processes currently supervised.",
	})
	reg.MustRegister(m.running)
	m.seconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "biodivine",
		Subsystem: "dispatch",
		Name:      "process_seconds",
		Help:      "Wall-clock run time of worker processes.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
	})
	reg.MustRegister(m.seconds)
	return m
}

func reasonLabel(outcome biodivine.Outcome) string {
	if !outcome.Failed() {
		return "Success"
	}
	return string(outcome.Reason)
}
