package audio

import (
	"log/slog"
	"strconv"
)

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the native capture executable (e.g., "arecord"), or "ffmpeg".
	Command string

	// InputFormat is the FFmpeg input format (e.g., "alsa", "avfoundation", "dshow").
	InputFormat string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform has no native capture tool.
	UsesFFmpeg bool

	// BuildArgs returns native capture arguments producing raw S16LE PCM on stdout.
	BuildArgs func(device string, f Format) []string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it attempts to use the default or auto-detect. A device
// display name is translated to its identifier.
// FFmpeg is used when the backend asks for it or the platform has nothing else.
func BuildCaptureCommand(backend Backend, device, ffmpegPath string, f Format) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	switch {
	case device == "" && cfg.DefaultDevice != "":
		device = cfg.DefaultDevice
	case device == "":
		// Windows has no safe default.
		devices := Devices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	case device != cfg.DefaultDevice:
		// Operators may configure the display name shown by -list-devices.
		if id, ok := ResolveDevice(device, Devices()); ok && id != device {
			slog.Info("audio device resolved", "name", device, "id", id)
			device = id
		}
	}

	if backend == BackendFFmpeg || cfg.UsesFFmpeg {
		command := "ffmpeg"
		if ffmpegPath != "" {
			command = ffmpegPath
		}
		return command, buildFFmpegCaptureArgs(cfg.InputFormat, device, f), nil
	}

	return cfg.Command, cfg.BuildArgs(device, f), nil
}

// buildFFmpegCaptureArgs constructs FFmpeg arguments for audio capture.
func buildFFmpegCaptureArgs(inputFormat, device string, f Format) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"pipe:1",
	}
}
