// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// Logins counts Login attempts by result: "token", "password",
	// or "failed".
	Logins *prometheus.CounterVec

	// Resolutions counts room and filter resolutions that reached the
	// network, by kind ("room", "filter") and result ("ok", "error").
	Resolutions *prometheus.CounterVec

	// Cycles counts completed sync cycles by outcome ("ok", "failed").
	Cycles *prometheus.CounterVec

	// CycleDuration observes wall time per sync cycle.
	CycleDuration prometheus.Histogram

	// Messages counts messages delivered from sync cycles.
	Messages prometheus.Counter

	// Listening is 1 while a cycle is in flight.
	Listening prometheus.Gauge

	// Restarts counts ListenOver calls that started a new cycle.
	Restarts prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered, which tests and embedders that do not
// export metrics rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtxchat",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtxchat",
			Name:      "resolutions_total",
			Help:      "Room and filter resolutions that reached the server.",
		}, []string{"kind", "result"}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtxchat",
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Completed sync cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mtxchat",
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one long-poll sync cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 90},
		}),
		Messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mtxchat",
			Subsystem: "sync",
			Name:      "messages_total",
			Help:      "Messages received from sync cycles.",
		}),
		Listening: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtxchat",
			Subsystem: "sync",
			Name:      "listening",
			Help:      "1 while a sync cycle is in flight.",
		}),
		Restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mtxchat",
			Subsystem: "sync",
			Name:      "restarts_total",
			Help:      "Cycles started directly by the completion of a previous one.",
		}),
	}
}
