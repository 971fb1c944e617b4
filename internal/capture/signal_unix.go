//go:build !windows

package capture

import (
	"os"
	"syscall"
)

// terminateGroup asks the process group to exit.
func terminateGroup(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

// killGroup forcibly terminates the process group.
func killGroup(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
