package control

import (
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want types.Command
		ok   bool
	}{
		{"manual", types.CommandManual, true},
		{"  \tauto", types.CommandAuto, true},
		{"recordings please", types.CommandRecord, true},
		{"initialize", types.CommandInitialize, true},
		{"pause", types.CommandPause, true},
		{"unpause", types.CommandUnpause, true},
		{"stop now", types.CommandStop, true},
		{"cancel", types.CommandCancel, true},
		{"STOP", 0, false},
		{"xstop", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand([]byte(tt.line))
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseCommand(%q) = %s, %v; want %s, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTelemetryDiff(t *testing.T) {
	tel := NewTelemetry()

	st := types.DefaultStatus
	if got := tel.Update(st); len(got) != 0 {
		t.Errorf("unchanged status produced %q", got)
	}

	st.Level = 0.5
	st.State = types.StateIdle
	st.Baseline = 0.01
	want := "level 0.500000\nbase_level 0.010000\nstate idle\n"
	if got := string(tel.Update(st)); got != want {
		t.Errorf("Update = %q, want %q", got, want)
	}

	st.Mode = types.ModeManual
	if got := string(tel.Update(st)); got != "mode manual\n" {
		t.Errorf("Update = %q, want mode line", got)
	}
}

func TestTelemetryClipReportedWhileNonZero(t *testing.T) {
	tel := NewTelemetry()
	var out strings.Builder
	for _, clips := range []int{0, 3, 0} {
		out.Write(tel.Update(types.Status{State: types.StateInitializing, ClippedFrames: clips}))
	}
	if got := strings.Count(out.String(), "clip "); got != 1 {
		t.Errorf("clip lines = %d in %q, want 1", got, out.String())
	}
	if !strings.Contains(out.String(), "clip 3\n") {
		t.Errorf("missing clip 3 in %q", out.String())
	}

	// Repeated clipping is reported every tick.
	tel.Update(types.Status{ClippedFrames: 2})
	if got := string(tel.Update(types.Status{ClippedFrames: 2})); got != "clip 2\n" {
		t.Errorf("second clipping tick = %q", got)
	}
}

func TestTelemetrySnapshot(t *testing.T) {
	tel := NewTelemetry()
	tel.Update(types.Status{Mode: types.ModeManual, State: types.StateRecording, Level: 0.25, Baseline: 0.125})
	want := "level 0.250000\nbase_level 0.125000\nmode manual\nstate recording\n"
	if got := string(tel.Snapshot()); got != want {
		t.Errorf("Snapshot = %q, want %q", got, want)
	}
}
