// Package metrics holds the Prometheus collectors for the reactor and its
// collaborators.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_ticks_total",
		Help: "Total number of reactor ticks",
	})

	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_samples_total",
		Help: "Sampler runs by channel and outcome",
	}, []string{"channel", "outcome"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_transitions_total",
		Help: "Channel state changes by channel and entered state (baselines excluded)",
	}, []string{"channel", "state"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_actions_total",
		Help: "Actions attempted by action and result",
	}, []string{"action", "result"}) // result=ok|failed|skipped

	scriptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camwatch_script_duration_seconds",
		Help:    "Wall-clock duration of custom script runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_ws_clients",
		Help: "Connected status feed websocket clients",
	})
)

func RecordTick() {
	ticksTotal.Inc()
}

func RecordSample(channel, outcome string) {
	samplesTotal.WithLabelValues(channel, outcome).Inc()
}

func RecordTransition(channel, state string) {
	transitionsTotal.WithLabelValues(channel, state).Inc()
}

func RecordAction(action, result string) {
	actionsTotal.WithLabelValues(action, result).Inc()
}

func ObserveScript(d time.Duration) {
	scriptDuration.Observe(d.Seconds())
}

func SetWSClients(n int) {
	wsClients.Set(float64(n))
}
