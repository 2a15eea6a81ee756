//go:build windows

package util

import (
	"os"
	"os/exec"
	"time"
)

// ShutdownSignals returns the signals that stop the recorder.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// StopGracefully bounds how long cmd may outlive its context. Windows cannot
// deliver SIGINT to a child, so cancellation only closes pipes and the
// process is killed after grace.
func StopGracefully(cmd *exec.Cmd, grace time.Duration) {
	cmd.Cancel = func() error { return nil }
	cmd.WaitDelay = grace
}
