//go:build linux

package audio

import (
	"regexp"
	"strconv"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		InputFormat:   "alsa",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

// buildLinuxArgs requests an ALSA period equal to one analysis buffer so
// overruns line up with ticks.
func buildLinuxArgs(device string, f Format) []string {
	periodUs := f.FramesPerBuffer * 1000000 / f.SampleRate
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
		"-t", "raw",
		"-F", strconv.Itoa(periodUs),
		"-B", strconv.Itoa(periodUs * 4),
		"-",
	}
}

var arecordCardLine = regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\],\s+device\s+(\d+)`)

// platformDeviceListing reads ALSA capture cards from arecord -l. Cards are
// addressed through plughw so ALSA converts rate and channel count.
func platformDeviceListing() deviceListing {
	return deviceListing{
		command: []string{"arecord", "-l"},
		pattern: arecordCardLine,
		parse: func(m []string) (Device, bool) {
			return Device{ID: "plughw:CARD=" + m[2] + ",DEV=" + m[4], Name: m[3]}, true
		},
		fallback: []Device{{ID: "default", Name: "ALSA default"}},
	}
}
