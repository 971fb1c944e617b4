// Package capturr schedules and supervises media captures: each configured
// source has weekly recording windows; when a window opens, an external
// copy-mode capture process is launched for the window's duration,
// supervised to completion or timeout, retried a bounded number of times,
// and the terminal outcome is notified.
package capturr

import (
	"net/http"
	"time"

	"github.com/loykin/capturr/internal/capture"
	cfg "github.com/loykin/capturr/internal/config"
	"github.com/loykin/capturr/internal/coordinator"
	"github.com/loykin/capturr/internal/history"
	"github.com/loykin/capturr/internal/history/factory"
	"github.com/loykin/capturr/internal/metrics"
	"github.com/loykin/capturr/internal/notify"
	"github.com/loykin/capturr/internal/schedule"
	iapi "github.com/loykin/capturr/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Source = schedule.Source

type Window = schedule.Window

type TimeOfDay = schedule.TimeOfDay

type Trigger = schedule.Trigger

type Outcome = capture.Outcome

type RecordingStatus = coordinator.RecordingStatus

type Config = cfg.Config

type HistorySink = history.Sink

type Notifier = notify.Notifier

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewNotifier builds the webhook notifier for a config, sharing client for
// connection pooling; an empty webhook URL yields a noop notifier.
func NewNotifier(c *Config, client *http.Client) Notifier {
	return notify.NewWebhook(c.WebhookURL, client)
}

// NewHistorySink builds a history sink from a DSN
// (sqlite/postgres/clickhouse/opensearch).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Orchestrator is a thin facade over the internal coordinator.
// It provides a stable public API for embedding.
type Orchestrator struct {
	inner   *coordinator.Coordinator
	sampler *metrics.ProcessSampler
}

// New assembles an orchestrator from a resolved config plus the injected
// collaborators (notifier and history sinks may be nil/empty).
func New(c *Config, notifier Notifier, sinks ...HistorySink) *Orchestrator {
	var sampler *metrics.ProcessSampler
	if c.Metrics != nil && c.Metrics.SampleProcess {
		sampler = metrics.NewProcessSampler(c.Metrics.SampleInterval)
	}
	inner := coordinator.New(coordinator.Options{
		Sources: c.Sources,
		Settings: capture.Settings{
			OutputDir: c.OutputDirectory,
			Binary:    c.FFmpeg,
			Grace:     c.Grace,
			KillWait:  c.KillWait,
			Log:       c.Log,
		},
		CheckInterval: c.CheckInterval,
		Attempts:      c.Attempts,
		Notifier:      notifier,
		Sinks:         sinks,
		Sampler:       sampler,
	})
	return &Orchestrator{inner: inner, sampler: sampler}
}

func (o *Orchestrator) Start() error {
	if o.sampler != nil {
		if err := o.sampler.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		o.sampler.Start()
	}
	return o.inner.Start()
}

func (o *Orchestrator) Stop() {
	o.inner.Stop()
	if o.sampler != nil {
		o.sampler.Stop()
	}
}

func (o *Orchestrator) Status() []RecordingStatus { return o.inner.Snapshot() }

func (o *Orchestrator) StopRecording(source string, windowStart time.Time) error {
	return o.inner.StopRecording(source, windowStart)
}

// Match exposes the pure schedule matcher for embedding and tooling.
func Match(now time.Time, sources []Source, tolerance time.Duration) []Trigger {
	return schedule.Match(now, sources, tolerance)
}

// NextWindow returns the next opening time of any of src's windows.
func NextWindow(now time.Time, src Source) (time.Time, Window, bool) {
	return schedule.NextWindow(now, src)
}

// RegisterMetrics registers capture metrics with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers capture metrics with the default
// Prometheus registry.
func RegisterMetricsDefault() error { return metrics.RegisterDefault() }

// ServeMetrics serves Prometheus metrics on addr at /metrics.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return server.ListenAndServe()
}

// NewHTTPServer starts the control API on addr; the returned server can be
// Closed for shutdown.
func NewHTTPServer(addr, basePath string, o *Orchestrator, notifier Notifier) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, o.inner, notifier)
}

// NewAPIHandler returns the control API as an http.Handler for mounting in
// an existing server or framework.
func NewAPIHandler(basePath string, o *Orchestrator, notifier Notifier) http.Handler {
	return iapi.NewRouter(o.inner, notifier, basePath).Handler()
}
