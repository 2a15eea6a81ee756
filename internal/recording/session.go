package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session is one open recording: the output file, its encoder and the
// buffer count. It is owned by a single goroutine.
type Session struct {
	ID      string
	Started time.Time

	dir     string
	format  Format
	file    *os.File
	enc     Encoder
	buffers int
	closed  bool
}

// Open creates the temp file for a session started at started and attaches
// an encoder to it. initialBuffers seeds the recorded-buffer count.
func Open(dir string, started time.Time, cfg *EncoderConfig, newEncoder EncoderFactory, initialBuffers int) (*Session, error) {
	if newEncoder == nil {
		newEncoder = NewEncoder
	}

	path := filepath.Join(dir, TempName(started, cfg.Format))
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	enc, err := newEncoder(file, cfg)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("create encoder: %w", err)
	}

	return &Session{
		ID:      uuid.NewString(),
		Started: started,
		dir:     dir,
		format:  cfg.Format,
		file:    file,
		enc:     enc,
		buffers: initialBuffers,
	}, nil
}

// TempPath returns the path of the file being written.
func (s *Session) TempPath() string {
	return filepath.Join(s.dir, TempName(s.Started, s.format))
}

// Buffers returns the number of buffers counted toward the recording length.
func (s *Session) Buffers() int {
	return s.buffers
}

// Feed encodes samples without counting them.
func (s *Session) Feed(samples []int16) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.enc.Write(samples)
}

// Record counts one buffer and encodes it.
func (s *Session) Record(samples []int16) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.buffers++
	return s.enc.Write(samples)
}

// Finish flushes the encoder, closes the file and then renames or deletes it.
func (s *Session) Finish(d Disposition, seconds int) (Result, error) {
	res := Result{
		ID:          s.ID,
		Started:     s.Started,
		Seconds:     seconds,
		Buffers:     s.buffers,
		Disposition: d,
		Path:        s.TempPath(),
	}
	if s.closed {
		return res, ErrSessionClosed
	}
	s.closed = true

	closeErr := errors.Join(s.enc.Close(), s.file.Close())

	if d != Keep {
		if err := os.Remove(res.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return res, errors.Join(closeErr, fmt.Errorf("remove recording: %w", err))
		}
		return res, closeErr
	}

	if closeErr != nil {
		return res, closeErr
	}

	final := filepath.Join(s.dir, FinalName(s.Started, seconds, s.format))
	if err := os.Rename(res.Path, final); err != nil {
		return res, fmt.Errorf("rename recording: %w", err)
	}
	res.Path = final
	return res, nil
}
