package recording

import (
	"fmt"
	"os"
)

// Encoder compresses interleaved S16 samples into an output file.
type Encoder interface {
	Write(samples []int16) error
	// Close flushes remaining data. It does not close the file.
	Close() error
}

// EncoderConfig describes the stream handed to an encoder.
type EncoderConfig struct {
	Format     Format
	SampleRate int
	Channels   int
	FFmpegPath string // Required for FLAC
}

// EncoderFactory creates an encoder writing to file.
type EncoderFactory func(file *os.File, cfg *EncoderConfig) (Encoder, error)

// NewEncoder creates the encoder for cfg.Format.
func NewEncoder(file *os.File, cfg *EncoderConfig) (Encoder, error) {
	switch cfg.Format {
	case FormatFLAC:
		enc, err := NewFLACEncoder(file, cfg)
		if err != nil {
			return nil, err
		}
		return enc, nil
	case FormatWAV:
		return NewWAVEncoder(file, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
	}
}
