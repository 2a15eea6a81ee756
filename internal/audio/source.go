package audio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoAudioDevice is returned when no audio input device is available.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrOverflow is returned by ReadBuffer when input was lost. The buffer contents are undefined.
	ErrOverflow = errors.New("input overflow")
	// ErrInterrupted is returned by ReadBuffer after Interrupt.
	ErrInterrupted = errors.New("capture interrupted")
)

// Format describes the PCM stream a Source delivers.
type Format struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// BufferLen returns the number of interleaved samples per buffer.
func (f Format) BufferLen() int {
	return f.FramesPerBuffer * f.Channels
}

// Source delivers fixed-size buffers of interleaved S16 samples.
type Source interface {
	// ReadBuffer blocks until buf is completely filled. It returns ErrOverflow
	// when the device dropped input; any other error is permanent.
	ReadBuffer(buf []int16) error
	// Interrupt makes a blocked or future ReadBuffer return. It is safe to
	// call from any goroutine and does not release resources.
	Interrupt()
	// Close releases the source. Call it only after the reader has returned.
	Close() error
}

// Backend names a capture implementation.
type Backend string

// Capture backends.
const (
	BackendArecord   Backend = "arecord"
	BackendFFmpeg    Backend = "ffmpeg"
	BackendPortAudio Backend = "portaudio"
	BackendWAV       Backend = "wav"
)

// OpenConfig selects and parameterizes a capture source.
type OpenConfig struct {
	Backend    Backend
	Device     string // Device identifier or name, backend specific
	FFmpegPath string // Used by the ffmpeg backend
	File       string // Used by the wav backend
	Realtime   bool   // Pace the wav backend at the stream rate
	Format     Format
}

// Open starts the configured capture source.
func Open(cfg *OpenConfig) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Backend {
	case BackendArecord, BackendFFmpeg, "":
		src, err = NewCommandSource(cfg)
	case BackendPortAudio:
		src, err = NewPortAudioSource(cfg.Device, cfg.Format)
	case BackendWAV:
		src, err = NewWAVSource(cfg.File, cfg.Format, cfg.Realtime)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// isOverrunLine reports whether a capture tool stderr line reports lost input.
func isOverrunLine(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "overrun") || strings.Contains(l, "overflow")
}
