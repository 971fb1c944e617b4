package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/capturr/internal/logger"
	"github.com/loykin/capturr/internal/schedule"
)

// Settings are the shared knobs applied to every job the coordinator
// dispatches.
type Settings struct {
	OutputDir string
	Binary    string
	Grace     time.Duration
	KillWait  time.Duration
	MaxStderr int
	Log       logger.Config
}

// Job runs one attempt of recording a triggered window: spawn the capture
// process, supervise it until natural exit or deadline, classify the
// result. Retrying is the runner's concern, not the job's.
type Job struct {
	Trigger schedule.Trigger
	Spec    Spec
	// OnStart, when set, is invoked with the pid of every spawned capture
	// process. Retries spawn new processes and report new pids.
	OnStart func(pid int)

	log logger.Config
}

// NewJob builds the job for a trigger using the shared capture settings.
func NewJob(tr schedule.Trigger, st Settings) *Job {
	spec := Spec{
		Name:       tr.Source.Name,
		InputURL:   tr.Source.URL,
		Duration:   tr.Duration(),
		OutputPath: OutputPath(st.OutputDir, tr.Source.Name, tr.WindowStart),
		Binary:     st.Binary,
		Grace:      st.Grace,
		KillWait:   st.KillWait,
		MaxStderr:  st.MaxStderr,
	}
	return &Job{Trigger: tr, Spec: spec, log: st.Log}
}

// Run executes a single capture attempt. The process is given
// Duration+Grace to exit on its own; past that it is terminated and the
// attempt counts as a timeout. Cancelling ctx terminates the process and
// yields KindCanceled.
func (j *Job) Run(ctx context.Context) Outcome {
	// Defensive re-check: the trigger must still correspond to one of the
	// source's configured windows. A mismatch is a configuration error,
	// not a transient failure.
	if !j.windowStillMatches() {
		return Outcome{Kind: KindNoMatchingWindow, ExitCode: -1, Output: j.Spec.OutputPath}
	}
	if err := j.Spec.Validate(); err != nil {
		return Outcome{Kind: KindNoMatchingWindow, ExitCode: -1, Stderr: err.Error(), Output: j.Spec.OutputPath}
	}

	if err := os.MkdirAll(filepath.Dir(j.Spec.OutputPath), 0o750); err != nil {
		return Outcome{Kind: KindProcessFailure, ExitCode: -1, Stderr: err.Error(), Output: j.Spec.OutputPath}
	}

	cmd := j.Spec.BuildCommand()
	configureSysProcAttr(cmd)

	stderr := newTailBuffer(j.Spec.MaxStderr)
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard
	// Mirror the error stream into a rotating transcript when file logging
	// is enabled; the in-memory tail stays the source of truth for outcomes.
	if t := j.log.TranscriptWriter(j.Spec.Name); t != nil {
		cmd.Stderr = io.MultiWriter(stderr, t)
		defer t.Close()
	}

	if err := cmd.Start(); err != nil {
		return Outcome{Kind: KindProcessFailure, ExitCode: -1, Stderr: err.Error(), Output: j.Spec.OutputPath}
	}
	if j.OnStart != nil && cmd.Process != nil {
		j.OnStart(cmd.Process.Pid)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	grace := j.Spec.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	deadline := time.NewTimer(j.Spec.Duration + grace)
	defer deadline.Stop()

	select {
	case err := <-done:
		return j.classifyExit(err, stderr)
	case <-ctx.Done():
		j.reap(cmd.Process, done)
		return Outcome{Kind: KindCanceled, ExitCode: -1, Stderr: stderr.String(), Output: j.Spec.OutputPath}
	case <-deadline.C:
		j.reap(cmd.Process, done)
		return Outcome{Kind: KindTimeout, ExitCode: -1, Stderr: stderr.String(), Output: j.Spec.OutputPath}
	}
}

func (j *Job) windowStillMatches() bool {
	start := j.Trigger.WindowStart
	if !j.Trigger.WindowEnd.After(start) {
		return false
	}
	for _, w := range j.Trigger.Source.Windows {
		if w.Day == start.Weekday() &&
			w.Start.On(start).Equal(start) &&
			w.End.On(start).Equal(j.Trigger.WindowEnd) {
			return true
		}
	}
	return false
}

func (j *Job) classifyExit(err error, stderr *tailBuffer) Outcome {
	if err == nil {
		return Outcome{Kind: KindSuccess, Output: j.Spec.OutputPath}
	}
	code := exitCode(err)
	return Outcome{Kind: KindProcessFailure, ExitCode: code, Stderr: stderr.String(), Output: j.Spec.OutputPath}
}

// reap terminates the process group politely, escalates to SIGKILL after
// KillWait, and waits for cmd.Wait to return so nothing is left unreaped.
func (j *Job) reap(p *os.Process, done <-chan error) {
	if p == nil {
		return
	}
	_ = terminateGroup(p)
	wait := j.Spec.KillWait
	if wait <= 0 {
		wait = DefaultKillWait
	}
	select {
	case <-done:
		return
	case <-time.After(wait):
	}
	_ = killGroup(p)
	<-done
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// tailBuffer is a size-bounded writer keeping the most recent bytes of the
// process error stream. ffmpeg can be chatty over an hour-long capture;
// only the tail is useful for diagnostics.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxStderr
	}
	return &tailBuffer{max: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
