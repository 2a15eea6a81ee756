package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/recording"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

type fakeBackend struct {
	err      error
	uploaded []string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Upload(_ context.Context, localPath string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.uploaded = append(b.uploaded, filepath.Base(localPath))
	return "fake://" + filepath.Base(localPath), nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func writeFile(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func TestScanUploadsFinishedOldestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, dir, "b,20s.flac", base.Add(time.Minute))
	writeFile(t, dir, "a,30s.flac", base)
	writeFile(t, dir, "c.flac.tmp", base)
	writeFile(t, dir, "d,10s.wav", base)

	b := &fakeBackend{}
	u := New(&Config{Dir: dir, Format: recording.FormatFLAC, Backend: b})
	u.Scan(context.Background())

	if len(b.uploaded) != 2 || b.uploaded[0] != "a,30s.flac" || b.uploaded[1] != "b,20s.flac" {
		t.Errorf("uploaded = %v", b.uploaded)
	}
	if exists(dir, "a,30s.flac") || exists(dir, "b,20s.flac") {
		t.Error("uploaded files not deleted")
	}
	if !exists(dir, "c.flac.tmp") || !exists(dir, "d,10s.wav") {
		t.Error("unrelated files touched")
	}
}

func TestFailedUploadBacksOff(t *testing.T) {
	dir := t.TempDir()
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	writeFile(t, dir, "a,30s.flac", clk.now)

	b := &fakeBackend{err: errors.New("network down")}
	u := New(&Config{Dir: dir, Format: recording.FormatFLAC, Backend: b, Now: clk.Now})

	u.Scan(context.Background())
	p := u.pending["a,30s.flac"]
	if p == nil || p.attempts != 1 {
		t.Fatalf("pending = %+v, want one attempt", p)
	}

	// Not due yet.
	clk.now = clk.now.Add(500 * time.Millisecond)
	u.Scan(context.Background())
	if p.attempts != 1 {
		t.Errorf("retried before backoff elapsed: attempts = %d", p.attempts)
	}

	clk.now = clk.now.Add(time.Second)
	u.Scan(context.Background())
	if p.attempts != 2 {
		t.Errorf("attempts = %d, want 2", p.attempts)
	}
	if want := clk.now.Add(2 * time.Second); !p.nextAttempt.Equal(want) {
		t.Errorf("next attempt = %v, want %v", p.nextAttempt, want)
	}

	b.err = nil
	clk.now = clk.now.Add(2 * time.Second)
	u.Scan(context.Background())
	if len(b.uploaded) != 1 || exists(dir, "a,30s.flac") {
		t.Errorf("recovered upload not completed: %v", b.uploaded)
	}
	if len(u.pending) != 0 {
		t.Errorf("pending not cleared: %v", u.pending)
	}
}

func TestUploadAbandonedAfterMaxAge(t *testing.T) {
	dir := t.TempDir()
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	writeFile(t, dir, "a,30s.flac", clk.now)

	var abandoned []Abandoned
	u := New(&Config{
		Dir:         dir,
		Format:      recording.FormatFLAC,
		Backend:     &fakeBackend{err: errors.New("denied")},
		MaxRetryAge: time.Hour,
		Now:         clk.Now,
		OnAbandoned: func(a Abandoned) { abandoned = append(abandoned, a) },
	})

	u.Scan(context.Background())
	clk.now = clk.now.Add(2 * time.Hour)
	u.Scan(context.Background())
	clk.now = clk.now.Add(2 * time.Hour)
	u.Scan(context.Background())

	if len(abandoned) != 1 {
		t.Fatalf("abandoned = %d notifications, want 1", len(abandoned))
	}
	if abandoned[0].Attempts != 2 || abandoned[0].LastError != "denied" {
		t.Errorf("abandoned = %+v", abandoned[0])
	}
	if !exists(dir, "a,30s.flac") {
		t.Error("abandoned file deleted")
	}
}

func TestCommandBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "upload.sh")
	body := "#!/bin/sh\ncase \"$1\" in *good*) exit 0;; *) echo \"rejected $1\" >&2; exit 3;; esac\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	b := NewCommandBackend(script)
	if _, err := b.Upload(context.Background(), "/rec/good,20s.flac"); err != nil {
		t.Errorf("Upload(good) = %v", err)
	}
	_, err := b.Upload(context.Background(), "/rec/bad,20s.flac")
	if err == nil {
		t.Fatal("Upload(bad) succeeded")
	}
	if got := err.Error(); !strings.Contains(got, "rejected /rec/bad,20s.flac") {
		t.Errorf("error = %q, want script output", got)
	}
}

func TestNewBackend(t *testing.T) {
	if b, err := NewBackend(BackendNone, "", nil); b != nil || err != nil {
		t.Errorf("NewBackend(none) = %v, %v", b, err)
	}
	if _, err := NewBackend(BackendCommand, "", nil); err == nil {
		t.Error("command backend without command accepted")
	}
	if _, err := NewBackend(BackendS3, "", &types.S3Config{}); !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("NewBackend(s3) = %v, want ErrS3NotConfigured", err)
	}
	b, err := NewBackend(BackendS3, "", &types.S3Config{
		Endpoint:        "https://s3.example.com",
		Bucket:          "recordings",
		Prefix:          "piano",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewBackend(s3): %v", err)
	}
	s3b := b.(*S3Backend)
	if got := s3b.Key("/rec/a,20s.flac"); got != "piano/a,20s.flac" {
		t.Errorf("Key = %q", got)
	}
	if contentType("a.flac") != "audio/flac" || contentType("a.wav") != "audio/wav" {
		t.Error("unexpected content types")
	}
}
