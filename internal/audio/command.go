package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// captureShutdownTimeout bounds how long a capture process may take to exit after SIGINT.
const captureShutdownTimeout = 2000 * time.Millisecond

// CommandSource reads raw PCM from a capture subprocess (arecord or FFmpeg).
type CommandSource struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stdout  *bufio.Reader
	scratch []byte

	overrun     atomic.Bool
	interrupted atomic.Bool

	stderr     util.StderrTail
	stderrDone chan struct{}
}

// NewCommandSource starts the platform capture command for cfg.
func NewCommandSource(cfg *OpenConfig) (*CommandSource, error) {
	name, args, err := BuildCaptureCommand(cfg.Backend, cfg.Device, cfg.FFmpegPath, cfg.Format)
	if err != nil {
		return nil, err
	}
	return startCommandSource(name, args, cfg.Format)
}

func startCommandSource(name string, args []string, f Format) (*CommandSource, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	util.StopGracefully(cmd, captureShutdownTimeout)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	slog.Info("audio capture started", "command", name, "args", strings.Join(args, " "))

	s := &CommandSource{
		cmd:        cmd,
		cancel:     cancel,
		stdout:     bufio.NewReaderSize(stdoutPipe, 2*f.BufferLen()*2),
		scratch:    make([]byte, 2*f.BufferLen()),
		stderrDone: make(chan struct{}),
	}
	go s.watchStderr(stderrPipe)
	return s, nil
}

// watchStderr flags overruns and keeps the last lines for error reporting.
func (s *CommandSource) watchStderr(r io.Reader) {
	defer close(s.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isOverrunLine(line) {
			s.overrun.Store(true)
			continue
		}
		s.stderr.Add(line)
	}
}

// ReadBuffer fills buf with the next buffer of samples.
func (s *CommandSource) ReadBuffer(buf []int16) error {
	need := 2 * len(buf)
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	raw := s.scratch[:need]

	if _, err := io.ReadFull(s.stdout, raw); err != nil {
		if s.interrupted.Load() {
			return ErrInterrupted
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			<-s.stderrDone
			if msg := s.stderr.Last(); msg != "" {
				return fmt.Errorf("capture process ended: %s", msg)
			}
			return fmt.Errorf("capture process ended: %w", err)
		}
		return fmt.Errorf("read capture stream: %w", err)
	}
	DecodeS16LE(buf, raw)

	if s.overrun.Swap(false) {
		return ErrOverflow
	}
	return nil
}

// Interrupt signals the capture process. The pending read sees end of stream
// once the process exits, or after captureShutdownTimeout when it is killed.
func (s *CommandSource) Interrupt() {
	s.interrupted.Store(true)
	s.cancel()
}

// Close stops the capture process and reaps it. Stderr is drained before
// Wait so the watcher never races the pipe close.
func (s *CommandSource) Close() error {
	s.Interrupt()
	select {
	case <-s.stderrDone:
	case <-time.After(2 * captureShutdownTimeout):
		slog.Warn("capture stderr still open after shutdown timeout")
	}
	err := s.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
		// Expected after cancellation.
		return nil
	}
	return err
}
