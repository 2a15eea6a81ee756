package recording

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVEncoder writes 16-bit PCM WAV in-process.
type WAVEncoder struct {
	enc *wav.Encoder
	buf *goaudio.IntBuffer
}

// NewWAVEncoder creates a WAV encoder. The header is finalized on Close.
func NewWAVEncoder(w io.WriteSeeker, cfg *EncoderConfig) *WAVEncoder {
	return &WAVEncoder{
		enc: wav.NewEncoder(w, cfg.SampleRate, 16, cfg.Channels, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: cfg.Channels, SampleRate: cfg.SampleRate},
			SourceBitDepth: 16,
		},
	}
}

// Write appends samples.
func (e *WAVEncoder) Write(samples []int16) error {
	if cap(e.buf.Data) < len(samples) {
		e.buf.Data = make([]int, len(samples))
	}
	e.buf.Data = e.buf.Data[:len(samples)]
	for i, s := range samples {
		e.buf.Data[i] = int(s)
	}
	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

// Close writes the final header sizes.
func (e *WAVEncoder) Close() error {
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
