//go:build windows

package capture

import "os"

// Windows has no group signalling through os; Kill terminates the process
// directly for both the polite and forceful path.

func terminateGroup(p *os.Process) error { return p.Kill() }

func killGroup(p *os.Process) error { return p.Kill() }
