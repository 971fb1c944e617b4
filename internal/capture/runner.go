package capture

import "context"

// DefaultAttempts is the bounded retry budget per trigger.
const DefaultAttempts = 3

// Runner wraps Job with a bounded immediate-retry policy. A failed or
// timed-out attempt is retried at once for the full original duration;
// success, cancellation, and window mismatch end the run immediately. The
// terminal outcome carries the number of attempts consumed.
type Runner struct {
	Attempts int
	// OnAttempt, when set, is invoked after every attempt with its ordinal
	// (1-based) and outcome. Used for per-attempt logging and metrics; it
	// must not block for long.
	OnAttempt func(n int, out Outcome)
}

// Run executes the job until a terminal outcome. It invokes the job at
// most Attempts times (default 3) and stops at the first success.
func (r Runner) Run(ctx context.Context, job *Job) Outcome {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var out Outcome
	for n := 1; n <= attempts; n++ {
		out = job.Run(ctx)
		out.Attempts = n
		if r.OnAttempt != nil {
			r.OnAttempt(n, out)
		}
		if !out.Kind.Retryable() {
			return out
		}
	}
	return out
}

// Exhausted reports whether the runner gave up after consuming the whole
// retry budget without success.
func (r Runner) Exhausted(out Outcome) bool {
	return out.Kind.Retryable()
}
