package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a 16-bit WAV file as a capture stream. When the file ends
// the source reports io.EOF.
type WAVSource struct {
	file    *os.File
	decoder *wav.Decoder
	pcm     *goaudio.IntBuffer
	ticker  *time.Ticker

	interruptOnce sync.Once
	interrupted   chan struct{}
}

// NewWAVSource opens path and checks that it matches f.
func NewWAVSource(path string, f Format, realtime bool) (*WAVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav source: %w", err)
	}

	d := wav.NewDecoder(file)
	if !d.IsValidFile() {
		_ = file.Close()
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if int(d.SampleRate) != f.SampleRate || int(d.NumChans) != f.Channels || d.BitDepth != 16 {
		_ = file.Close()
		return nil, fmt.Errorf("%s: format %d Hz/%d ch/%d bit, want %d Hz/%d ch/16 bit",
			path, d.SampleRate, d.NumChans, d.BitDepth, f.SampleRate, f.Channels)
	}

	s := &WAVSource{
		file:    file,
		decoder: d,
		pcm: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			Data:   make([]int, f.BufferLen()),
		},
		interrupted: make(chan struct{}),
	}
	if realtime {
		period := time.Duration(f.FramesPerBuffer) * time.Second / time.Duration(f.SampleRate)
		s.ticker = time.NewTicker(period)
	}
	return s, nil
}

// ReadBuffer decodes the next buffer. A trailing partial buffer is zero padded.
func (s *WAVSource) ReadBuffer(buf []int16) error {
	if s.ticker != nil {
		select {
		case <-s.ticker.C:
		case <-s.interrupted:
			return ErrInterrupted
		}
	}
	select {
	case <-s.interrupted:
		return ErrInterrupted
	default:
	}
	if len(s.pcm.Data) != len(buf) {
		s.pcm.Data = make([]int, len(buf))
	}

	n, err := s.decoder.PCMBuffer(s.pcm)
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	for i := range buf {
		if i < n {
			buf[i] = int16(s.pcm.Data[i])
		} else {
			buf[i] = 0
		}
	}
	return nil
}

// Interrupt stops playback. Subsequent reads return ErrInterrupted.
func (s *WAVSource) Interrupt() {
	s.interruptOnce.Do(func() { close(s.interrupted) })
}

// Close releases the file.
func (s *WAVSource) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return s.file.Close()
}
