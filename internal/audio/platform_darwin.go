//go:build darwin

package audio

import (
	"regexp"
	"strings"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		InputFormat:   "avfoundation",
		DefaultDevice: ":0",
		UsesFFmpeg:    true,
	}
}

var avfoundationLine = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)

// platformDeviceListing reads AVFoundation audio inputs from FFmpeg. IDs use
// the ":index" form that selects audio only.
func platformDeviceListing() deviceListing {
	return deviceListing{
		command: []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		start:   "AVFoundation audio devices:",
		stop:    "AVFoundation video devices:",
		pattern: avfoundationLine,
		parse: func(m []string) (Device, bool) {
			return Device{ID: ":" + m[1], Name: strings.TrimSpace(m[2])}, true
		},
	}
}
