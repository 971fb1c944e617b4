package capture

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Timestamp layout used in output file names (window start).
const stampLayout = "20060102150405"

// Default supervision parameters.
const (
	DefaultBinary    = "ffmpeg"
	DefaultGrace     = 3 * time.Second
	DefaultKillWait  = 2 * time.Second
	DefaultMaxStderr = 64 * 1024
)

// Spec describes one capture attempt: which stream to pull, for how long,
// and where the artifact lands.
type Spec struct {
	Name       string        `json:"name"`        // source name, used for logging/metrics labels
	InputURL   string        `json:"input_url"`   // stream URL handed to the capture binary
	Duration   time.Duration `json:"duration"`    // nominal recording length (window end - start)
	OutputPath string        `json:"output_path"` // artifact destination
	Binary     string        `json:"binary"`      // capture binary, default "ffmpeg"
	Grace      time.Duration `json:"grace"`       // extra wait past Duration before the process is declared hung
	KillWait   time.Duration `json:"kill_wait"`   // SIGTERM to SIGKILL escalation wait
	MaxStderr  int           `json:"max_stderr"`  // stderr capture cap in bytes
}

// Validate checks the invariants a job relies on.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("capture spec requires a name")
	}
	if s.InputURL == "" {
		return fmt.Errorf("capture %s requires an input url", s.Name)
	}
	if s.Duration <= 0 {
		return fmt.Errorf("capture %s requires a positive duration", s.Name)
	}
	if s.OutputPath == "" {
		return fmt.Errorf("capture %s requires an output path", s.Name)
	}
	return nil
}

// BuildCommand constructs the copy-mode capture invocation. The stream is
// remuxed, never re-encoded, and the run time is bounded to whole seconds
// of the spec duration.
func (s *Spec) BuildCommand() *exec.Cmd {
	bin := s.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	secs := int(s.Duration / time.Second)
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(bin,
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", s.InputURL,
		"-c", "copy",
		"-t", strconv.Itoa(secs),
		"-y", s.OutputPath,
	)
}

// OutputPath computes the deterministic artifact location for a source and
// window start: <dir>/<name>/<name>_<YYYYMMDDHHmmss>.mp4. It is injective
// in (name, windowStart), so concurrently triggered distinct windows never
// collide.
func OutputPath(dir, name string, windowStart time.Time) string {
	file := fmt.Sprintf("%s_%s.mp4", name, windowStart.Format(stampLayout))
	return filepath.Join(dir, name, file)
}
