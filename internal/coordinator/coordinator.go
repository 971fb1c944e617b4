package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/capturr/internal/capture"
	"github.com/loykin/capturr/internal/history"
	"github.com/loykin/capturr/internal/metrics"
	"github.com/loykin/capturr/internal/notify"
	"github.com/loykin/capturr/internal/schedule"
)

// DefaultCheckInterval is the schedule polling tick. The matcher tolerance
// equals the tick so exactly the ticks inside [start, start+tick) observe
// a window opening.
const DefaultCheckInterval = 5 * time.Second

// notifyTimeout bounds a single terminal-outcome delivery.
const notifyTimeout = 10 * time.Second

// Options configures a Coordinator.
type Options struct {
	Sources       []schedule.Source
	Settings      capture.Settings
	CheckInterval time.Duration
	Attempts      int
	Notifier      notify.Notifier
	Sinks         []history.Sink
	Logger        *slog.Logger
	// Sampler, when set, samples CPU and memory of in-flight capture
	// processes.
	Sampler *metrics.ProcessSampler
}

// Coordinator runs the scheduling loop: on a fixed tick it matches the
// current time against every source's windows and dispatches one capture
// run per opened window. Each run gets its own goroutine, so supervision
// of a recording never delays the next tick or other recordings.
type Coordinator struct {
	sources  []schedule.Source
	settings capture.Settings
	interval time.Duration
	attempts int
	notifier notify.Notifier
	sinks    []history.Sink
	log      *slog.Logger
	sampler  *metrics.ProcessSampler
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*recording
	quit     chan struct{}
	wg       sync.WaitGroup
}

// recording tracks one in-flight capture run.
type recording struct {
	trigger   schedule.Trigger
	output    string
	startedAt time.Time
	cancel    context.CancelFunc

	amu     sync.Mutex
	attempt int
}

// RecordingStatus is the externally visible snapshot of one in-flight run.
type RecordingStatus struct {
	Source      string    `json:"source"`
	Output      string    `json:"output"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	StartedAt   time.Time `json:"started_at"`
	Attempt     int       `json:"attempt"`
}

func New(opts Options) *Coordinator {
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		sources:  opts.Sources,
		settings: opts.Settings,
		interval: interval,
		attempts: opts.Attempts,
		notifier: notifier,
		sinks:    opts.Sinks,
		log:      log,
		sampler:  opts.Sampler,
		now:      time.Now,
		inflight: make(map[string]*recording),
	}
}

// Sources returns the immutable source list.
func (c *Coordinator) Sources() []schedule.Source { return c.sources }

// Start launches the tick loop. The first schedule check runs immediately;
// subsequent checks fire every interval measured tick-to-tick, independent
// of how long any dispatched capture takes. Call Stop to cancel.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quit != nil {
		return errors.New("coordinator already started")
	}
	c.quit = make(chan struct{})
	go c.loop(c.quit)
	return nil
}

func (c *Coordinator) loop(quit chan struct{}) {
	c.check(c.now())
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			c.check(c.now())
		}
	}
}

// Stop cancels the tick loop and every in-flight capture, then waits for
// the capture goroutines to finish reaping their processes.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.quit != nil {
		select {
		case <-c.quit:
		default:
			close(c.quit)
		}
	}
	for _, rec := range c.inflight {
		rec.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// CheckNow runs one schedule evaluation pass immediately, outside the
// periodic ticks. A zero now means the current time. Useful after a
// schedule change and for embedding tests.
func (c *Coordinator) CheckNow(now time.Time) {
	if now.IsZero() {
		now = c.now()
	}
	c.check(now)
}

// check runs one schedule matcher pass and dispatches every opened window.
func (c *Coordinator) check(now time.Time) {
	metrics.IncScheduleCheck()
	triggers := schedule.Match(now, c.sources, c.interval)
	for _, tr := range triggers {
		c.dispatch(tr)
	}
}

// dispatch claims the trigger in the in-flight set and hands it to its own
// goroutine. A trigger already claimed (a second tick inside the tolerance,
// or a stop that has not reaped yet) is skipped, so one (source, window
// start) pair never records twice.
func (c *Coordinator) dispatch(tr schedule.Trigger) {
	key := tr.Key()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recording{
		trigger:   tr,
		output:    capture.OutputPath(c.settings.OutputDir, tr.Source.Name, tr.WindowStart),
		startedAt: c.now(),
		cancel:    cancel,
	}

	c.mu.Lock()
	if c.quit == nil {
		c.mu.Unlock()
		cancel()
		return
	}
	if _, active := c.inflight[key]; active {
		c.mu.Unlock()
		cancel()
		c.log.Debug("window already being captured, skipping",
			"source", tr.Source.Name, "window_start", tr.WindowStart)
		return
	}
	c.inflight[key] = rec
	c.wg.Add(1)
	c.mu.Unlock()

	metrics.IncTrigger(tr.Source.Name)
	c.record(history.EventTrigger, history.Record{
		Source:      tr.Source.Name,
		Output:      rec.output,
		WindowStart: tr.WindowStart,
		WindowEnd:   tr.WindowEnd,
	})
	c.log.Info("window opened, dispatching capture",
		"source", tr.Source.Name,
		"window_start", tr.WindowStart,
		"duration", tr.Duration(),
		"output", rec.output)

	go c.run(ctx, key, rec)
}

func (c *Coordinator) run(ctx context.Context, key string, rec *recording) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		rec.cancel()
	}()

	metrics.AddInFlight(1)
	defer metrics.AddInFlight(-1)

	tr := rec.trigger
	job := capture.NewJob(tr, c.settings)
	if c.sampler != nil {
		job.OnStart = func(pid int) { c.sampler.Track(tr.Source.Name, pid) }
		defer c.sampler.Untrack(tr.Source.Name)
	}
	runner := capture.Runner{
		Attempts: c.attempts,
		OnAttempt: func(n int, out capture.Outcome) {
			rec.amu.Lock()
			rec.attempt = n
			rec.amu.Unlock()
			metrics.IncAttempt(tr.Source.Name)
			c.record(history.EventAttempt, c.recordFor(tr, out))
			if out.Kind.Retryable() {
				c.log.Warn("capture attempt failed",
					"source", tr.Source.Name,
					"attempt", n,
					"kind", string(out.Kind),
					"exit_code", out.ExitCode,
					"stderr", out.Stderr)
				metrics.IncRetry(tr.Source.Name)
			}
		},
	}

	out := runner.Run(ctx, job)
	elapsed := c.now().Sub(rec.startedAt)
	metrics.IncOutcome(tr.Source.Name, string(out.Kind))
	metrics.ObserveCaptureDuration(tr.Source.Name, elapsed.Seconds())
	c.record(history.EventOutcome, c.recordFor(tr, out))
	c.finish(tr, out, elapsed)
}

// finish logs the terminal outcome and sends exactly one notification for
// it. Notification failure is logged and swallowed; it never surfaces as a
// job failure.
func (c *Coordinator) finish(tr schedule.Trigger, out capture.Outcome, elapsed time.Duration) {
	var msg string
	switch out.Kind {
	case capture.KindSuccess:
		c.log.Info("capture finished",
			"source", tr.Source.Name, "output", out.Output,
			"attempts", out.Attempts, "elapsed", elapsed)
		msg = notify.CaptureSucceeded(tr.Source.Name, out.Output, out.Attempts)
	case capture.KindCanceled:
		c.log.Info("capture stopped on request",
			"source", tr.Source.Name, "output", out.Output, "attempts", out.Attempts)
		msg = notify.CaptureCanceled(tr.Source.Name, out.Output)
	case capture.KindNoMatchingWindow:
		c.log.Error("trigger matched no configured window",
			"source", tr.Source.Name, "window_start", tr.WindowStart)
		msg = notify.NoMatchingWindow(tr.Source.Name, tr.WindowStart)
	default:
		// Retry budget exhausted on a failing or hung process.
		c.log.Error("capture failed, retries exhausted",
			"source", tr.Source.Name,
			"attempts", out.Attempts,
			"kind", string(out.Kind),
			"exit_code", out.ExitCode)
		msg = notify.RetriesExhausted(tr.Source.Name, out.Attempts, out.Err())
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := c.notifier.Send(ctx, msg); err != nil {
		metrics.IncNotifyFailure()
		c.log.Warn("notification delivery failed", "source", tr.Source.Name, "error", err)
	}
}

func (c *Coordinator) recordFor(tr schedule.Trigger, out capture.Outcome) history.Record {
	rec := history.Record{
		Source:      tr.Source.Name,
		Output:      out.Output,
		WindowStart: tr.WindowStart,
		WindowEnd:   tr.WindowEnd,
		Outcome:     string(out.Kind),
		ExitCode:    out.ExitCode,
		Attempt:     out.Attempts,
	}
	if err := out.Err(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// record fans an event out to every sink. Sink errors are logged, never
// escalated.
func (c *Coordinator) record(t history.EventType, rec history.Record) {
	if len(c.sinks) == 0 {
		return
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	for _, s := range c.sinks {
		if err := s.Send(context.Background(), evt); err != nil {
			c.log.Warn("history sink write failed", "error", err)
		}
	}
}

// StopRecording cancels the in-flight capture for source. When windowStart
// is non-zero only that window's run is stopped; otherwise every in-flight
// run for the source is. The underlying process is terminated and the run
// finishes with a canceled outcome.
func (c *Coordinator) StopRecording(source string, windowStart time.Time) error {
	c.mu.Lock()
	var stopped int
	for _, rec := range c.inflight {
		if rec.trigger.Source.Name != source {
			continue
		}
		if !windowStart.IsZero() && !rec.trigger.WindowStart.Equal(windowStart) {
			continue
		}
		rec.cancel()
		stopped++
	}
	c.mu.Unlock()
	if stopped == 0 {
		return fmt.Errorf("no recording in flight for %s", source)
	}
	return nil
}

// Snapshot lists the in-flight recordings.
func (c *Coordinator) Snapshot() []RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecordingStatus, 0, len(c.inflight))
	for _, rec := range c.inflight {
		rec.amu.Lock()
		attempt := rec.attempt
		rec.amu.Unlock()
		out = append(out, RecordingStatus{
			Source:      rec.trigger.Source.Name,
			Output:      rec.output,
			WindowStart: rec.trigger.WindowStart,
			WindowEnd:   rec.trigger.WindowEnd,
			StartedAt:   rec.startedAt,
			Attempt:     attempt,
		})
	}
	return out
}
