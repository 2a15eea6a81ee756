//go:build !portaudio

package audio

import "errors"

var errNoPortAudio = errors.New("portaudio backend not compiled in (build with -tags portaudio)")

// PortAudioSource is unavailable in this build.
type PortAudioSource struct{}

// NewPortAudioSource always fails in builds without the portaudio tag.
func NewPortAudioSource(string, Format) (*PortAudioSource, error) {
	return nil, errNoPortAudio
}

// ReadBuffer is never reached.
func (*PortAudioSource) ReadBuffer([]int16) error { return errNoPortAudio }

// Interrupt is a no-op.
func (*PortAudioSource) Interrupt() {}

// Close is a no-op.
func (*PortAudioSource) Close() error { return nil }

// PortAudioDevices always fails in builds without the portaudio tag.
func PortAudioDevices() ([]Device, error) {
	return nil, errNoPortAudio
}
