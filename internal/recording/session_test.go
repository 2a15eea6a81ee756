package recording

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

type fakeEncoder struct {
	writes int
	closed bool
	err    error
}

func (e *fakeEncoder) Write([]int16) error {
	e.writes++
	return e.err
}

func (e *fakeEncoder) Close() error {
	e.closed = true
	return nil
}

func fakeFactory(enc *fakeEncoder) EncoderFactory {
	return func(*os.File, *EncoderConfig) (Encoder, error) { return enc, nil }
}

var testStart = time.Date(2024, 3, 1, 19, 4, 5, 0, time.FixedZone("CET", 3600))

func TestNames(t *testing.T) {
	if got, want := TempName(testStart, FormatFLAC), "2024-03-01T19:04:05+0100.flac.tmp"; got != want {
		t.Errorf("TempName = %q, want %q", got, want)
	}
	if got, want := FinalName(testStart, 42, FormatFLAC), "2024-03-01T19:04:05+0100,42s.flac"; got != want {
		t.Errorf("FinalName = %q, want %q", got, want)
	}
}

func TestIsFinished(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"2024-03-01T19:04:05+0100,42s.flac", true},
		{"2024-03-01T19:04:05+0100.flac.tmp", false},
		{"notes.txt", false},
		{".hidden.flac", false},
	}
	for _, tt := range tests {
		if got := IsFinished(tt.name, FormatFLAC); got != tt.want {
			t.Errorf("IsFinished(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSessionKeepRenames(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{}
	s, err := Open(dir, testStart, &EncoderConfig{Format: FormatFLAC}, fakeFactory(enc), 25)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := os.Stat(s.TempPath()); err != nil {
		t.Fatalf("temp file missing: %v", err)
	}

	if err := s.Feed(make([]int16, 4)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := s.Record(make([]int16, 4)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if s.Buffers() != 26 {
		t.Errorf("Buffers = %d, want 26", s.Buffers())
	}

	res, err := s.Finish(Keep, 20)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !enc.closed || enc.writes != 2 {
		t.Errorf("encoder closed=%v writes=%d", enc.closed, enc.writes)
	}
	want := filepath.Join(dir, "2024-03-01T19:04:05+0100,20s.flac")
	if res.Path != want {
		t.Errorf("Path = %q, want %q", res.Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("final file missing: %v", err)
	}
	if _, err := os.Stat(s.TempPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestSessionDiscardRemoves(t *testing.T) {
	for _, d := range []Disposition{DiscardCancelled, DiscardTooShort} {
		t.Run(d.String(), func(t *testing.T) {
			dir := t.TempDir()
			s, err := Open(dir, testStart, &EncoderConfig{Format: FormatWAV}, fakeFactory(&fakeEncoder{}), 0)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if _, err := s.Finish(d, 100); err != nil {
				t.Fatalf("Finish: %v", err)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("directory not empty: %v", entries)
			}
		})
	}
}

func TestSessionWriteAfterFinish(t *testing.T) {
	s, err := Open(t.TempDir(), testStart, &EncoderConfig{Format: FormatWAV}, fakeFactory(&fakeEncoder{}), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Finish(DiscardCancelled, 0); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := s.Record(nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Record after Finish = %v, want ErrSessionClosed", err)
	}
	if _, err := s.Finish(Keep, 0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Finish = %v, want ErrSessionClosed", err)
	}
}

func TestOpenFailsWhenEncoderFails(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	_, err := Open(dir, testStart, &EncoderConfig{Format: FormatFLAC}, func(*os.File, *EncoderConfig) (Encoder, error) {
		return nil, boom
	}, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("Open error = %v, want boom", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp file left behind: %v", entries)
	}
}

func TestWAVSessionProducesValidFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &EncoderConfig{Format: FormatWAV, SampleRate: 8000, Channels: 2}
	s, err := Open(dir, testStart, cfg, nil, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for range 3 {
		if err := s.Record([]int16{1, -1, 2, -2}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	res, err := s.Finish(Keep, 0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := os.Open(res.Path)
	if err != nil {
		t.Fatalf("Open result: %v", err)
	}
	defer func() { _ = f.Close() }()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		t.Fatal("output is not a valid WAV file")
	}
	if d.SampleRate != 8000 || d.NumChans != 2 || d.BitDepth != 16 {
		t.Errorf("header = %d Hz/%d ch/%d bit", d.SampleRate, d.NumChans, d.BitDepth)
	}
}

func TestNewEncoderUnknownFormat(t *testing.T) {
	_, err := NewEncoder(nil, &EncoderConfig{Format: "mp3"})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("NewEncoder(mp3) = %v, want ErrUnknownFormat", err)
	}
}

func TestFLACEncoderRequiresFFmpeg(t *testing.T) {
	if _, err := NewFLACEncoder(nil, &EncoderConfig{Format: FormatFLAC}); err == nil {
		t.Error("NewFLACEncoder without ffmpeg path succeeded")
	}
}

func TestFLACArgsWriteSeekableFile(t *testing.T) {
	path := "/rec/2024-03-01T19:04:05+0100.flac.tmp"
	args := flacArgs(path, &EncoderConfig{Format: FormatFLAC, SampleRate: 44100, Channels: 2})

	if got := args[len(args)-1]; got != "file:"+path {
		t.Errorf("output = %q, want file: %s", got, path)
	}
	if slices.Contains(args, "pipe:1") {
		t.Errorf("output still goes through a pipe: %v", args)
	}
	if !slices.Contains(args, "-y") {
		t.Errorf("existing temp file would not be overwritten: %v", args)
	}
	i := slices.Index(args, "-ar")
	if i < 0 || args[i+1] != "44100" {
		t.Errorf("sample rate missing: %v", args)
	}
}

func TestRemoveStaleTemp(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.flac.tmp", "b.flac.tmp", "c,20s.flac", "d.wav.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	n, err := RemoveStaleTemp(dir, FormatFLAC)
	if err != nil {
		t.Fatalf("RemoveStaleTemp: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d files, want 2", n)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("remaining = %d entries, want 2", len(entries))
	}
}
