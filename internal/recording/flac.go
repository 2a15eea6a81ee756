package recording

import (
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-autorecorder/internal/audio"
	"github.com/oszuidwest/zwfm-autorecorder/internal/ffmpeg"
)

// FLACEncoder pipes PCM through an FFmpeg process that writes FLAC to the session file.
type FLACEncoder struct {
	proc *ffmpeg.Process
	raw  []byte
}

// NewFLACEncoder starts FFmpeg writing to file's path. FFmpeg opens the file
// itself so the output is seekable and STREAMINFO gets the final sample
// count and MD5 when the stream ends.
func NewFLACEncoder(file *os.File, cfg *EncoderConfig) (*FLACEncoder, error) {
	if cfg.FFmpegPath == "" {
		return nil, fmt.Errorf("flac encoder: ffmpeg not found")
	}

	proc, err := ffmpeg.StartProcess(cfg.FFmpegPath, flacArgs(file.Name(), cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("flac encoder: %w", err)
	}
	return &FLACEncoder{proc: proc}, nil
}

// flacArgs encodes S16LE from stdin into path. The file: prefix keeps the
// colons of timestamped names from being read as a protocol.
func flacArgs(path string, cfg *EncoderConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y"}
	args = append(args, ffmpeg.InputArgs(cfg.SampleRate, cfg.Channels)...)
	return append(args,
		"-c:a", "flac",
		"-sample_fmt", "s16",
		"-f", "flac",
		"file:"+path,
	)
}

// Write sends samples to FFmpeg.
func (e *FLACEncoder) Write(samples []int16) error {
	need := 2 * len(samples)
	if cap(e.raw) < need {
		e.raw = make([]byte, need)
	}
	raw := e.raw[:need]
	audio.EncodeS16LE(raw, samples)

	if _, err := e.proc.Stdin.Write(raw); err != nil {
		return fmt.Errorf("write to ffmpeg: %w", err)
	}
	return nil
}

// Close ends the stream and waits for FFmpeg to finish writing.
func (e *FLACEncoder) Close() error {
	return e.proc.Finish()
}
