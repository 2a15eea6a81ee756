package ffmpeg

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLookupConfiguredPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit not used on windows")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg-custom")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Lookup(bin)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != bin {
		t.Errorf("Lookup = %q, want %q", got, bin)
	}
}

func TestLookupMissingPath(t *testing.T) {
	if _, err := Lookup(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Lookup succeeded for a missing binary")
	}
}
