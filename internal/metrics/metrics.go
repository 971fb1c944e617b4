package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	scheduleChecks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturr",
			Subsystem: "schedule",
			Name:      "checks_total",
			Help:      "Number of schedule matcher passes run by the coordinator.",
		},
	)
	scheduleTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturr",
			Subsystem: "schedule",
			Name:      "triggers_total",
			Help:      "Number of window openings dispatched per source.",
		}, []string{"source"},
	)
	captureAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturr",
			Subsystem: "capture",
			Name:      "attempts_total",
			Help:      "Number of capture process attempts per source.",
		}, []string{"source"},
	)
	captureOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturr",
			Subsystem: "capture",
			Name:      "outcomes_total",
			Help:      "Terminal capture outcomes per source and kind.",
		}, []string{"source", "kind"},
	)
	captureRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturr",
			Subsystem: "capture",
			Name:      "retries_total",
			Help:      "Number of re-attempts after a failed or timed out capture.",
		}, []string{"source"},
	)
	captureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "capturr",
			Subsystem: "capture",
			Name:      "duration_seconds",
			Help:      "Wall-clock time a capture spent from dispatch to terminal outcome.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"source"},
	)
	captureInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "capturr",
			Subsystem: "capture",
			Name:      "in_flight",
			Help:      "Number of capture jobs currently running.",
		},
	)
	notifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturr",
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Number of notification deliveries that failed (best-effort, never retried).",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		scheduleChecks, scheduleTriggers, captureAttempts, captureOutcomes,
		captureRetries, captureDuration, captureInFlight, notifyFailures,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers with the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncScheduleCheck() {
	if regOK.Load() {
		scheduleChecks.Inc()
	}
}

func IncTrigger(source string) {
	if regOK.Load() {
		scheduleTriggers.WithLabelValues(source).Inc()
	}
}

func IncAttempt(source string) {
	if regOK.Load() {
		captureAttempts.WithLabelValues(source).Inc()
	}
}

func IncRetry(source string) {
	if regOK.Load() {
		captureRetries.WithLabelValues(source).Inc()
	}
}

func IncOutcome(source, kind string) {
	if regOK.Load() {
		captureOutcomes.WithLabelValues(source, kind).Inc()
	}
}

func ObserveCaptureDuration(source string, seconds float64) {
	if regOK.Load() {
		captureDuration.WithLabelValues(source).Observe(seconds)
	}
}

func AddInFlight(delta float64) {
	if regOK.Load() {
		captureInFlight.Add(delta)
	}
}

func IncNotifyFailure() {
	if regOK.Load() {
		notifyFailures.Inc()
	}
}
