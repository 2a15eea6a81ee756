package audio

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// deviceListing describes how a platform enumerates capture devices.
type deviceListing struct {
	command []string

	// Lines outside [start, stop) are ignored. An empty start means the
	// whole output is scanned.
	start, stop string

	pattern *regexp.Regexp
	parse   func(matches []string) (Device, bool)

	// fallback is returned when enumeration finds nothing.
	fallback []Device
}

// Devices returns available capture devices for the arecord and ffmpeg
// backends. PortAudio devices are listed separately by PortAudioDevices.
func Devices() []Device {
	l := platformDeviceListing()
	if len(l.command) == 0 {
		return l.fallback
	}

	out, err := exec.Command(l.command[0], l.command[1:]...).CombinedOutput()
	if err != nil && len(out) == 0 {
		slog.Error("failed to list audio devices", "command", l.command[0], "error", err)
		return l.fallback
	}
	if devices := l.parseOutput(string(out)); len(devices) > 0 {
		return devices
	}
	return l.fallback
}

func (l *deviceListing) parseOutput(out string) []Device {
	var devices []Device
	inSection := l.start == ""
	for line := range strings.SplitSeq(out, "\n") {
		switch {
		case l.start != "" && strings.Contains(line, l.start):
			inSection = true
			continue
		case l.stop != "" && strings.Contains(line, l.stop):
			inSection = false
			continue
		}
		// DirectShow prints a moniker line under every device.
		if !inSection || strings.Contains(line, "Alternative name") {
			continue
		}
		m := l.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if d, ok := l.parse(m); ok {
			devices = append(devices, d)
		}
	}
	return devices
}

// ResolveDevice maps a configured device to a backend identifier. An exact
// ID is kept; otherwise a case-insensitive display name match selects that
// device's ID. ok is false when nothing matches.
func ResolveDevice(configured string, devices []Device) (id string, ok bool) {
	for _, d := range devices {
		if d.ID == configured {
			return d.ID, true
		}
	}
	for _, d := range devices {
		if strings.EqualFold(strings.TrimSpace(d.Name), strings.TrimSpace(configured)) {
			return d.ID, true
		}
	}
	return configured, false
}
