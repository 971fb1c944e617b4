package notify

import (
	"fmt"
	"time"
)

// Message builders for terminal capture outcomes. Kept together so the
// operator-facing wording lives in one place.

func CaptureSucceeded(source, output string, attempts int) string {
	if attempts > 1 {
		return fmt.Sprintf("Recorded %s -> %s (attempt %d)", source, output, attempts)
	}
	return fmt.Sprintf("Recorded %s -> %s", source, output)
}

func RetriesExhausted(source string, attempts int, reason error) string {
	return fmt.Sprintf("Recording %s failed after %d attempts: %v", source, attempts, reason)
}

func NoMatchingWindow(source string, windowStart time.Time) string {
	return fmt.Sprintf("Recording %s skipped: no configured window matches %s", source, windowStart.Format(time.RFC3339))
}

func CaptureCanceled(source, output string) string {
	return fmt.Sprintf("Recording %s stopped on request (partial file at %s)", source, output)
}

func Test() string {
	return "capturr notification test"
}
