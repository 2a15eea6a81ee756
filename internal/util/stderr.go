package util

import (
	"bytes"
	"strings"
	"sync"
)

const (
	// maxErrorLineLength is the maximum length for reported error lines.
	maxErrorLineLength = 200
	stderrTailLines    = 8
)

// StderrTail keeps the last non-empty lines written by a child process so a
// failure can be reported without buffering hours of output.
type StderrTail struct {
	mu      sync.Mutex
	lines   []string
	partial []byte
}

// Write implements io.Writer.
func (t *StderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.partial = append(t.partial, p...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		t.add(string(t.partial[:i]))
		t.partial = t.partial[i+1:]
	}
	if len(t.partial) > 4*maxErrorLineLength {
		t.partial = t.partial[len(t.partial)-maxErrorLineLength:]
	}
	return len(p), nil
}

// Add records one complete line.
func (t *StderrTail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(line)
}

func (t *StderrTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > stderrTailLines {
		t.lines = t.lines[1:]
	}
}

// Last returns the most recent line, truncated for logging. An unterminated
// final line counts.
func (t *StderrTail) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := strings.TrimSpace(string(t.partial))
	if line == "" && len(t.lines) > 0 {
		line = t.lines[len(t.lines)-1]
	}
	if len(line) > maxErrorLineLength {
		return line[:maxErrorLineLength] + "..."
	}
	return line
}

// Annotate attaches the last stderr line to err.
func (t *StderrTail) Annotate(err error) error {
	if err == nil {
		return nil
	}
	if msg := t.Last(); msg != "" {
		return &processError{err: err, msg: msg}
	}
	return err
}

type processError struct {
	err error
	msg string
}

func (e *processError) Error() string { return e.err.Error() + ": " + e.msg }
func (e *processError) Unwrap() error { return e.err }
