//go:build !linux

package util

// RequestRealtimePriority is a no-op on platforms without SCHED_FIFO.
func RequestRealtimePriority() error {
	return nil
}
