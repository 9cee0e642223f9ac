// Package metrics exposes Prometheus collectors for the dispatch engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dispatchTotal           *prometheus.CounterVec
	dispatchDurationSeconds *prometheus.HistogramVec
	retriesTotal            *prometheus.CounterVec
	failuresTotal           *prometheus.CounterVec
	inFlightTasks           prometheus.Gauge
	frontierPushesTotal     prometheus.Counter

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		dispatchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spindle_dispatch_total",
				Help: "Total dispatched requests, labeled by tag and resulting signal.",
			},
			[]string{"tag", "signal"},
		)

		dispatchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spindle_dispatch_duration_seconds",
				Help:    "Histogram of full dispatch latencies (resolve plus handler), labeled by tag.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"tag"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spindle_retries_total",
				Help: "Total deferred requests pushed back to the frontier, labeled by tag.",
			},
			[]string{"tag"},
		)

		failuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spindle_failures_total",
				Help: "Total permanently aborted requests, labeled by tag.",
			},
			[]string{"tag"},
		)

		inFlightTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "spindle_inflight_tasks",
				Help: "Number of request state machines currently executing.",
			},
		)

		frontierPushesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "spindle_frontier_pushes_total",
				Help: "Total requests pushed to the frontier, seeds and follow-ups included.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDispatch records one completed dispatch.
func ObserveDispatch(tag string, signal string, duration time.Duration) {
	if dispatchTotal == nil {
		return
	}
	dispatchTotal.WithLabelValues(tag, signal).Inc()
	dispatchDurationSeconds.WithLabelValues(tag).Observe(duration.Seconds())
}

// ObserveRetry records a request re-entering the frontier.
func ObserveRetry(tag string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(tag).Inc()
}

// ObserveFailure records a permanently dropped request.
func ObserveFailure(tag string) {
	if failuresTotal == nil {
		return
	}
	failuresTotal.WithLabelValues(tag).Inc()
}

// IncInFlight increments the in-flight task gauge.
func IncInFlight() {
	if inFlightTasks != nil {
		inFlightTasks.Inc()
	}
}

// DecInFlight decrements the in-flight task gauge.
func DecInFlight() {
	if inFlightTasks != nil {
		inFlightTasks.Dec()
	}
}

// ObserveFrontierPush counts a request entering the frontier.
func ObserveFrontierPush() {
	if frontierPushesTotal != nil {
		frontierPushesTotal.Inc()
	}
}
