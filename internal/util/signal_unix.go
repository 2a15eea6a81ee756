//go:build !windows

package util

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ShutdownSignals returns the signals that stop the recorder.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// StopGracefully makes cancellation of cmd's context send SIGINT, so arecord
// and FFmpeg flush before exiting. The process is killed after grace.
func StopGracefully(cmd *exec.Cmd, grace time.Duration) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
	cmd.WaitDelay = grace
}
