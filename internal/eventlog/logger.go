// Package eventlog records recorder lifecycle and upload events in a JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Detection event types.
const (
	Calibrated EventType = "calibrated"
)

// Recording event types.
const (
	RecordingStarted   EventType = "recording_started"
	RecordingPaused    EventType = "recording_paused"
	RecordingResumed   EventType = "recording_resumed"
	RecordingSaved     EventType = "recording_saved"
	RecordingDiscarded EventType = "recording_discarded"
)

// Upload event types.
const (
	UploadCompleted EventType = "upload_completed"
	UploadFailed    EventType = "upload_failed"
	UploadAbandoned EventType = "upload_abandoned"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// RecordingDetails contains recording-specific event details.
type RecordingDetails struct {
	Filename    string  `json:"filename,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	LoudBuffers int     `json:"loud_buffers,omitempty"`
	Preroll     bool    `json:"preroll,omitempty"`
	Seconds     int     `json:"seconds,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Baseline    float64 `json:"baseline,omitempty"`
}

// UploadDetails contains upload-specific event details.
type UploadDetails struct {
	Filename   string `json:"filename"`
	Backend    string `json:"backend,omitempty"`
	Target     string `json:"target,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file. A nil *Logger discards events.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// LogRecording logs a recording event.
func (l *Logger) LogRecording(eventType EventType, sessionID string, details *RecordingDetails) error {
	return l.Log(&Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   details,
	})
}

// LogUpload logs an upload event.
func (l *Logger) LogUpload(eventType EventType, details *UploadDetails) error {
	return l.Log(&Event{
		Type:    eventType,
		Details: details,
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events from the log file, newest first.
func ReadLast(filePath string, n int) ([]Event, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	// Keep a sliding window of the last n lines.
	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(lines) == n {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}
	return events, nil
}
