// Package ffmpeg provides shared FFmpeg process management utilities.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// shutdownTimeout bounds how long FFmpeg may take to flush after stdin closes.
const shutdownTimeout = 5000 * time.Millisecond

// Process represents a running FFmpeg subprocess.
type Process struct {
	Cmd    *exec.Cmd
	Cancel context.CancelFunc
	Stdin  io.WriteCloser
	Stderr *util.StderrTail
}

// InputArgs returns FFmpeg arguments for S16LE PCM input on stdin.
func InputArgs(sampleRate, channels int) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
	}
}

// StartProcess launches an FFmpeg subprocess. A nil stdout discards its output.
func StartProcess(ffmpegPath string, args []string, stdout io.Writer) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	util.StopGracefully(cmd, shutdownTimeout)
	cmd.Stdout = stdout

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stderr := &util.StderrTail{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if closeErr := stdinPipe.Close(); closeErr != nil {
			slog.Warn("failed to close stdin pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Process{
		Cmd:    cmd,
		Cancel: cancel,
		Stdin:  stdinPipe,
		Stderr: stderr,
	}, nil
}

// Finish closes stdin and waits for FFmpeg to exit on its own. The last
// stderr line is attached to a non-zero exit.
func (p *Process) Finish() error {
	defer p.Cancel()
	closeErr := p.Stdin.Close()
	if err := p.Cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited: %w", p.Stderr.Annotate(err))
	}
	return closeErr
}
