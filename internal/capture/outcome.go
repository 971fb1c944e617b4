package capture

import "fmt"

// Kind classifies how a capture attempt ended.
type Kind string

const (
	// KindSuccess: the process exited 0 within the deadline.
	KindSuccess Kind = "success"
	// KindProcessFailure: the process exited non-zero within the deadline.
	KindProcessFailure Kind = "process_failure"
	// KindTimeout: the process did not exit by duration+grace and was killed.
	KindTimeout Kind = "timeout"
	// KindCanceled: a stop request terminated the process before the deadline.
	KindCanceled Kind = "canceled"
	// KindNoMatchingWindow: the trigger no longer matched any configured
	// window at dispatch time; nothing was spawned.
	KindNoMatchingWindow Kind = "no_matching_window"
)

// Retryable reports whether the runner may re-attempt after this kind.
func (k Kind) Retryable() bool {
	return k == KindProcessFailure || k == KindTimeout
}

// Outcome is the classification of one capture attempt (or, once it has
// passed through the runner, of the whole trigger).
type Outcome struct {
	Kind     Kind   `json:"kind"`
	ExitCode int    `json:"exit_code"` // valid for KindProcessFailure; -1 when the process never started
	Stderr   string `json:"stderr"`    // bounded tail of the process error stream
	Output   string `json:"output"`    // artifact path the attempt wrote to
	Attempts int    `json:"attempts"`  // attempts consumed, filled by the runner
}

// Err renders a failed outcome as an error value; nil for success.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindProcessFailure:
		return fmt.Errorf("capture process exited %d", o.ExitCode)
	case KindTimeout:
		return fmt.Errorf("capture process exceeded deadline and was killed")
	case KindCanceled:
		return fmt.Errorf("capture canceled")
	case KindNoMatchingWindow:
		return fmt.Errorf("trigger matched no configured window")
	}
	return fmt.Errorf("unknown outcome %q", o.Kind)
}
