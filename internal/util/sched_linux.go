//go:build linux

package util

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// RealtimePriority is the SCHED_FIFO priority requested for the analysis thread.
const RealtimePriority = 1

// RequestRealtimePriority switches the calling OS thread to SCHED_FIFO.
// Callers must hold the thread with runtime.LockOSThread. It is a no-op
// unless the process runs as root.
func RequestRealtimePriority() error {
	if os.Geteuid() != 0 {
		return nil
	}
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: RealtimePriority,
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		return fmt.Errorf("set SCHED_FIFO: %w", err)
	}
	return nil
}
