//go:build !windows

package capture

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the capture process in its own process group
// so a timeout or stop request can signal the whole group (ffmpeg may fork
// helpers).
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
