// Package upload ships finished recordings off the appliance. It periodically
// scans the recording directory and hands each finished file to a backend,
// deleting it once the backend reports success.
package upload

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-autorecorder/internal/recording"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// Upload timing defaults.
const (
	DefaultInterval    = time.Second
	DefaultMaxRetryAge = 24 * time.Hour
	InitialRetryDelay  = time.Second
	MaxRetryDelay      = 5 * time.Minute
	uploadTimeout      = 30 * time.Minute
)

// Backend names accepted by NewBackend.
const (
	BackendNone    = "none"
	BackendCommand = "command"
	BackendS3      = "s3"
)

// Backend transfers one file. It returns a description of where the file went.
type Backend interface {
	Name() string
	Upload(ctx context.Context, localPath string) (target string, err error)
}

// Abandoned describes a file the uploader gave up on.
type Abandoned struct {
	Filename     string
	FirstAttempt time.Time
	Attempts     int
	LastError    string
}

// Config configures an Uploader.
type Config struct {
	Dir         string
	Format      recording.Format
	Backend     Backend
	Interval    time.Duration
	MaxRetryAge time.Duration

	EventLog    *eventlog.Logger
	OnAbandoned func(a Abandoned)
	Now         func() time.Time
}

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	firstAttempt time.Time
	nextAttempt  time.Time
	attempts     int
	lastError    string
	backoff      *util.Backoff
	abandoned    bool
}

// Uploader scans for finished recordings and uploads them one at a time.
type Uploader struct {
	cfg     Config
	wake    chan struct{}
	pending map[string]*pendingUpload // Keyed by file name
}

// New creates an uploader.
func New(cfg *Config) *Uploader {
	c := *cfg
	c.Interval = cmp.Or(c.Interval, DefaultInterval)
	c.MaxRetryAge = cmp.Or(c.MaxRetryAge, DefaultMaxRetryAge)
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Uploader{
		cfg:     c,
		wake:    make(chan struct{}, 1),
		pending: make(map[string]*pendingUpload),
	}
}

// NewBackend creates the backend named by name. It returns nil for BackendNone.
func NewBackend(name, command string, s3cfg *types.S3Config) (Backend, error) {
	switch name {
	case BackendNone, "":
		return nil, nil
	case BackendCommand:
		if command == "" {
			return nil, errors.New("upload command is not set")
		}
		return NewCommandBackend(command), nil
	case BackendS3:
		b, err := NewS3Backend(s3cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", name)
	}
}

// Notify requests a scan without waiting for the next interval.
func (u *Uploader) Notify() {
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

// Run scans until ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) error {
	slog.Info("uploader started", "backend", u.cfg.Backend.Name(), "dir", u.cfg.Dir, "interval", u.cfg.Interval)

	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		u.Scan(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-u.wake:
		}
	}
}

// Scan uploads every finished recording that is due, oldest first.
func (u *Uploader) Scan(ctx context.Context) {
	files, err := u.finishedFiles()
	if err != nil {
		slog.Warn("failed to scan recording dir", "dir", u.cfg.Dir, "error", err)
		return
	}

	present := make(map[string]bool, len(files))
	for _, name := range files {
		present[name] = true
	}
	for name := range u.pending {
		if !present[name] {
			delete(u.pending, name)
		}
	}

	for _, name := range files {
		if ctx.Err() != nil {
			return
		}
		u.uploadIfDue(ctx, name)
	}
}

// finishedFiles lists finished recordings ordered by modification time.
func (u *Uploader) finishedFiles() ([]string, error) {
	entries, err := os.ReadDir(u.cfg.Dir)
	if err != nil {
		return nil, err
	}

	type file struct {
		name    string
		modTime time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !recording.IsFinished(e.Name(), u.cfg.Format) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // Removed between ReadDir and Info
		}
		files = append(files, file{name: e.Name(), modTime: info.ModTime()})
	}

	slices.SortFunc(files, func(a, b file) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

func (u *Uploader) uploadIfDue(ctx context.Context, name string) {
	now := u.cfg.Now()
	p := u.pending[name]
	if p != nil && (p.abandoned || now.Before(p.nextAttempt)) {
		return
	}

	localPath := filepath.Join(u.cfg.Dir, name)
	size := int64(0)
	if info, err := os.Stat(localPath); err == nil {
		size = info.Size()
	}

	uploadCtx, cancel := context.WithTimeoutCause(ctx, uploadTimeout, errors.New("upload timeout"))
	start := time.Now()
	target, err := u.cfg.Backend.Upload(uploadCtx, localPath)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		u.failed(name, now, err)
		return
	}

	attempts := 1
	if p != nil {
		attempts = p.attempts + 1
	}
	delete(u.pending, name)

	slog.Info("upload completed", "file", name, "target", target, "duration", elapsed.Truncate(time.Millisecond))
	u.logEvent(eventlog.UploadCompleted, &eventlog.UploadDetails{
		Filename:   name,
		Backend:    u.cfg.Backend.Name(),
		Target:     target,
		SizeBytes:  size,
		DurationMs: elapsed.Milliseconds(),
		Attempts:   attempts,
	})

	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to delete uploaded recording", "file", name, "error", err)
	}
}

func (u *Uploader) failed(name string, now time.Time, err error) {
	p := u.pending[name]
	if p == nil {
		p = &pendingUpload{
			firstAttempt: now,
			backoff:      util.NewBackoff(InitialRetryDelay, MaxRetryDelay),
		}
		u.pending[name] = p
	}
	p.attempts++
	p.lastError = err.Error()

	if now.Sub(p.firstAttempt) >= u.cfg.MaxRetryAge {
		p.abandoned = true
		slog.Error("upload abandoned, file kept", "file", name, "attempts", p.attempts, "error", err)
		u.logEvent(eventlog.UploadAbandoned, &eventlog.UploadDetails{
			Filename: name,
			Backend:  u.cfg.Backend.Name(),
			Attempts: p.attempts,
			Error:    p.lastError,
		})
		if u.cfg.OnAbandoned != nil {
			u.cfg.OnAbandoned(Abandoned{
				Filename:     name,
				FirstAttempt: p.firstAttempt,
				Attempts:     p.attempts,
				LastError:    p.lastError,
			})
		}
		return
	}

	delay := p.backoff.Next()
	p.nextAttempt = now.Add(delay)
	slog.Warn("upload failed", "file", name, "attempts", p.attempts, "retry_in", delay, "error", err)
	u.logEvent(eventlog.UploadFailed, &eventlog.UploadDetails{
		Filename: name,
		Backend:  u.cfg.Backend.Name(),
		Attempts: p.attempts,
		Error:    p.lastError,
	})
}

func (u *Uploader) logEvent(t eventlog.EventType, d *eventlog.UploadDetails) {
	if err := u.cfg.EventLog.LogUpload(t, d); err != nil {
		slog.Warn("event log write failed", "event", t, "error", err)
	}
}
