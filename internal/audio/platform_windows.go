//go:build windows

package audio

import (
	"regexp"
	"strings"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:     "ffmpeg",
		InputFormat: "dshow",
		// No safe default on Windows; the first listed device is used.
		UsesFFmpeg: true,
	}
}

// FFmpeg versions vary in section headers, so "(audio)" lines are matched instead.
var dshowAudioLine = regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`)

func platformDeviceListing() deviceListing {
	return deviceListing{
		command: []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		pattern: dshowAudioLine,
		parse: func(m []string) (Device, bool) {
			name := strings.TrimSpace(m[1])
			if name == "" {
				return Device{}, false
			}
			return Device{ID: "audio=" + name, Name: name}, true
		},
	}
}
