package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/capturr/internal/capture"
	"github.com/loykin/capturr/internal/history"
	"github.com/loykin/capturr/internal/schedule"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (f *fakeSink) Send(_ context.Context, e history.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) byType(t history.EventType) []history.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []history.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func stubBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stubs are unix-only")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// windowOpen is a Saturday 20:00 in the local zone; every test source gets
// a window opening at that instant.
var windowOpen = time.Date(2026, 3, 7, 20, 0, 0, 0, time.Local)

func testSource(name string) schedule.Source {
	return schedule.Source{
		Name: name,
		URL:  "rtsp://cam/" + name,
		Windows: []schedule.Window{
			{Day: time.Saturday, Start: schedule.TimeOfDay{Hour: 20}, End: schedule.TimeOfDay{Hour: 21}},
		},
	}
}

func newTestCoordinator(t *testing.T, body string, sources []schedule.Source, n *fakeNotifier, s *fakeSink) *Coordinator {
	t.Helper()
	c := New(Options{
		Sources: sources,
		Settings: capture.Settings{
			OutputDir: t.TempDir(),
			Binary:    stubBinary(t, body),
			Grace:     200 * time.Millisecond,
			KillWait:  100 * time.Millisecond,
		},
		CheckInterval: 50 * time.Millisecond,
		Attempts:      3,
		Notifier:      n,
		Sinks:         []history.Sink{s},
	})
	// Freeze the loop's clock outside any window; tests drive check()
	// directly with the opening instant.
	c.now = func() time.Time { return windowOpen.Add(30 * time.Minute) }
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCoordinatorDispatchesAndNotifiesOnce(t *testing.T) {
	n := &fakeNotifier{}
	s := &fakeSink{}
	c := newTestCoordinator(t, "exit 0", []schedule.Source{testSource("news")}, n, s)
	defer c.Stop()

	c.check(windowOpen)
	c.wg.Wait()

	msgs := n.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "Recorded news") {
		t.Fatalf("message: %q", msgs[0])
	}
	if got := s.byType(history.EventTrigger); len(got) != 1 {
		t.Fatalf("trigger events: %d", len(got))
	}
	if got := s.byType(history.EventOutcome); len(got) != 1 || got[0].Record.Outcome != string(capture.KindSuccess) {
		t.Fatalf("outcome events: %v", got)
	}
}

func TestCoordinatorDedupsRepeatedTicks(t *testing.T) {
	n := &fakeNotifier{}
	s := &fakeSink{}
	c := newTestCoordinator(t, "sleep 30", []schedule.Source{testSource("news")}, n, s)

	// Two ticks observe the same window opening; only one run starts.
	c.check(windowOpen)
	c.check(windowOpen.Add(10 * time.Millisecond))
	waitFor(t, func() bool { return len(c.Snapshot()) == 1 }, "one in-flight recording")
	if got := s.byType(history.EventTrigger); len(got) != 1 {
		t.Fatalf("dedup failed: %d trigger events", len(got))
	}

	c.Stop()
	msgs := n.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "stopped on request") {
		t.Fatalf("messages: %v", msgs)
	}
}

func TestCoordinatorConcurrentSources(t *testing.T) {
	n := &fakeNotifier{}
	s := &fakeSink{}
	sources := []schedule.Source{testSource("news"), testSource("sports")}
	c := newTestCoordinator(t, "sleep 30", sources, n, s)
	defer c.Stop()

	c.check(windowOpen)
	waitFor(t, func() bool { return len(c.Snapshot()) == 2 }, "two in-flight recordings")

	// Each source records to its own artifact.
	snap := c.Snapshot()
	if snap[0].Output == snap[1].Output {
		t.Fatalf("outputs collide: %q", snap[0].Output)
	}
	seen := map[string]bool{}
	for _, r := range snap {
		seen[r.Source] = true
	}
	if !seen["news"] || !seen["sports"] {
		t.Fatalf("snapshot sources: %v", snap)
	}
}

func TestCoordinatorRetriesExhaustedNotification(t *testing.T) {
	n := &fakeNotifier{}
	s := &fakeSink{}
	c := newTestCoordinator(t, "exit 1", []schedule.Source{testSource("news")}, n, s)
	defer c.Stop()

	c.check(windowOpen)
	c.wg.Wait()

	msgs := n.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "failed after 3 attempts") {
		t.Fatalf("messages: %v", msgs)
	}
	if got := s.byType(history.EventAttempt); len(got) != 3 {
		t.Fatalf("attempt events: %d", len(got))
	}
	outcomes := s.byType(history.EventOutcome)
	if len(outcomes) != 1 || outcomes[0].Record.Outcome != string(capture.KindProcessFailure) {
		t.Fatalf("outcome events: %v", outcomes)
	}
	if outcomes[0].Record.Attempt != 3 {
		t.Fatalf("terminal attempt: %d", outcomes[0].Record.Attempt)
	}
}

func TestCoordinatorStopRecording(t *testing.T) {
	n := &fakeNotifier{}
	s := &fakeSink{}
	c := newTestCoordinator(t, "sleep 30", []schedule.Source{testSource("news")}, n, s)
	defer c.Stop()

	c.check(windowOpen)
	waitFor(t, func() bool { return len(c.Snapshot()) == 1 }, "in-flight recording")

	if err := c.StopRecording("nope", time.Time{}); err == nil {
		t.Fatalf("expected error for unknown source")
	}
	if err := c.StopRecording("news", time.Time{}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	c.wg.Wait()
	msgs := n.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "stopped on request") {
		t.Fatalf("messages: %v", msgs)
	}
	if len(c.Snapshot()) != 0 {
		t.Fatalf("recording still in flight after stop")
	}
}

func TestCoordinatorStopRecordingByWindow(t *testing.T) {
	n := &fakeNotifier{}
	s := &fakeSink{}
	c := newTestCoordinator(t, "sleep 30", []schedule.Source{testSource("news")}, n, s)
	defer c.Stop()

	c.check(windowOpen)
	waitFor(t, func() bool { return len(c.Snapshot()) == 1 }, "in-flight recording")

	if err := c.StopRecording("news", windowOpen.Add(time.Minute)); err == nil {
		t.Fatalf("expected error for wrong window start")
	}
	if err := c.StopRecording("news", windowOpen); err != nil {
		t.Fatalf("stop: %v", err)
	}
	c.wg.Wait()
}

func TestCoordinatorNotificationFailureIsSwallowed(t *testing.T) {
	n := &fakeNotifier{err: errors.New("webhook down")}
	s := &fakeSink{}
	c := newTestCoordinator(t, "exit 0", []schedule.Source{testSource("news")}, n, s)
	defer c.Stop()

	c.check(windowOpen)
	c.wg.Wait()

	// The run still records its outcome even though delivery failed.
	if got := s.byType(history.EventOutcome); len(got) != 1 {
		t.Fatalf("outcome events: %d", len(got))
	}
	if len(c.Snapshot()) != 0 {
		t.Fatalf("run left in flight after notify failure")
	}
}

func TestCoordinatorStartTwice(t *testing.T) {
	c := New(Options{Sources: nil, Settings: capture.Settings{OutputDir: t.TempDir()}})
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()
	if err := c.Start(); err == nil {
		t.Fatalf("expected error on second start")
	}
}
