//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures through PortAudio's blocking read API.
type PortAudioSource struct {
	stream  *portaudio.Stream
	buf     []int16
	aborted atomic.Bool
}

// NewPortAudioSource opens and starts an input stream on the named device.
// An empty name selects the default input device.
func NewPortAudioSource(device string, f Format) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	dev, err := findPortAudioDevice(device)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	s := &PortAudioSource{buf: make([]int16, f.BufferLen())}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: f.Channels,
			Latency:  dev.DefaultHighInputLatency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: f.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start stream on %q: %w", dev.Name, err)
	}

	slog.Info("audio capture started", "backend", "portaudio", "device", dev.Name)
	s.stream = stream
	return s, nil
}

func findPortAudioDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && dev.Name == name {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("device %q: %w", name, ErrNoAudioDevice)
}

// ReadBuffer reads one buffer from the stream.
func (s *PortAudioSource) ReadBuffer(buf []int16) error {
	if s.aborted.Load() {
		return ErrInterrupted
	}
	err := s.stream.Read()
	if s.aborted.Load() {
		return ErrInterrupted
	}
	if errors.Is(err, portaudio.InputOverflowed) {
		return ErrOverflow
	}
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	copy(buf, s.buf)
	return nil
}

// Interrupt aborts the stream so a pending Read returns.
func (s *PortAudioSource) Interrupt() {
	if s.aborted.Swap(true) {
		return
	}
	if err := s.stream.Abort(); err != nil {
		slog.Warn("abort portaudio stream", "error", err)
	}
}

// Close stops the stream and releases PortAudio.
func (s *PortAudioSource) Close() error {
	var stopErr error
	if !s.aborted.Load() {
		stopErr = s.stream.Stop()
	}
	return errors.Join(stopErr, s.stream.Close(), portaudio.Terminate())
}

// PortAudioDevices lists PortAudio input devices.
func PortAudioDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var devices []Device
	for _, info := range infos {
		if info.MaxInputChannels == 0 {
			continue
		}
		devices = append(devices, Device{
			ID:   info.Name,
			Name: strings.TrimSpace(info.Name + " (" + info.HostApi.Name + ")"),
		})
	}
	return devices, nil
}
