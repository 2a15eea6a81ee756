// Package recording manages recording sessions: encoder, output file and naming.
package recording

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for recording operations.
var (
	// ErrSessionClosed is returned when writing to a finished session.
	ErrSessionClosed = errors.New("recording session is closed")

	// ErrUnknownFormat is returned for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown recording format")
)

// Format is a lossless output container.
type Format string

// Supported formats.
const (
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
)

// Ext returns the file extension without the leading dot.
func (f Format) Ext() string {
	return string(f)
}

// TempSuffix marks a file that is still being written.
const TempSuffix = ".tmp"

// TimestampLayout names files by local start time, e.g. 2024-03-01T19:04:05+0100.
const TimestampLayout = "2006-01-02T15:04:05-0700"

// TempName returns the in-progress filename for a session started at t.
func TempName(t time.Time, f Format) string {
	return t.Format(TimestampLayout) + "." + f.Ext() + TempSuffix
}

// FinalName returns the finished filename for a session of the given length.
func FinalName(t time.Time, seconds int, f Format) string {
	return fmt.Sprintf("%s,%ds.%s", t.Format(TimestampLayout), seconds, f.Ext())
}

// IsFinished reports whether name is a finalized recording of format f.
func IsFinished(name string, f Format) bool {
	return strings.HasSuffix(name, "."+f.Ext()) && !strings.HasPrefix(name, ".")
}

// Disposition is what happens to a session's file when it ends.
type Disposition uint8

const (
	// Keep renames the file to its final name.
	Keep Disposition = iota
	// DiscardCancelled deletes the file on operator request.
	DiscardCancelled
	// DiscardTooShort deletes an automatic recording below the minimum length.
	DiscardTooShort
)

// String returns the reason recorded in logs.
func (d Disposition) String() string {
	switch d {
	case Keep:
		return "kept"
	case DiscardCancelled:
		return "cancelled"
	case DiscardTooShort:
		return "too_short"
	default:
		return "unknown"
	}
}

// Result describes a finished session.
type Result struct {
	ID          string
	Started     time.Time
	Seconds     int
	Buffers     int
	Disposition Disposition
	Path        string // Final path when kept, temp path otherwise
}
