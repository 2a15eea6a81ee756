package util

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next #%d = %v, want %v", i, got, w)
		}
	}
}

func TestStderrTail(t *testing.T) {
	var tail StderrTail
	if got := tail.Last(); got != "" {
		t.Errorf("empty Last = %q", got)
	}

	_, _ = tail.Write([]byte("first\nsec"))
	_, _ = tail.Write([]byte("ond\n\n  \n"))
	if got := tail.Last(); got != "second" {
		t.Errorf("Last = %q, want %q", got, "second")
	}

	_, _ = tail.Write([]byte("unterminated"))
	if got := tail.Last(); got != "unterminated" {
		t.Errorf("Last with partial line = %q", got)
	}

	tail.Add(strings.Repeat("x", 250))
	_, _ = tail.Write([]byte("\n"))
	if got := tail.Last(); got != "unterminated" {
		t.Errorf("Last after flushing partial = %q", got)
	}

	var long StderrTail
	long.Add(strings.Repeat("x", 250))
	if got := long.Last(); got != strings.Repeat("x", 200)+"..." {
		t.Errorf("long line not truncated: %d bytes", len(got))
	}
}

func TestStderrTailAnnotate(t *testing.T) {
	var tail StderrTail
	base := errors.New("exit status 1")
	if err := tail.Annotate(base); err != base {
		t.Errorf("Annotate without output = %v", err)
	}
	tail.Add("No such file or directory")
	err := tail.Annotate(base)
	if !errors.Is(err, base) {
		t.Errorf("Annotate lost the cause: %v", err)
	}
	if err.Error() != "exit status 1: No such file or directory" {
		t.Errorf("Annotate = %q", err)
	}
	if tail.Annotate(nil) != nil {
		t.Error("Annotate(nil) != nil")
	}
}

func TestCheckPathWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	if err := CheckPathWritable(dir); err != nil {
		t.Fatalf("CheckPathWritable: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch file left behind: %v", entries)
	}
}

func TestIsConfigured(t *testing.T) {
	if !IsConfigured("a", "b") || IsConfigured("a", "") || !IsConfigured() {
		t.Error("unexpected IsConfigured result")
	}
}

func TestFormatHumanTime(t *testing.T) {
	if got := FormatHumanTime(""); got != "unknown" {
		t.Errorf("FormatHumanTime(\"\") = %q", got)
	}
	if got := FormatHumanTime("not a time"); got != "not a time" {
		t.Errorf("FormatHumanTime(invalid) = %q", got)
	}
	ts := "2024-03-01T12:00:00Z"
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Local().Format(humanTimeFormat)
	if got := FormatHumanTime(ts); got != want {
		t.Errorf("FormatHumanTime(%q) = %q, want %q", ts, got, want)
	}
}
