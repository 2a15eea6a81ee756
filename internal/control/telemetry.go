package control

import (
	"fmt"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

// Telemetry converts status snapshots into protocol lines. It remembers the
// last snapshot so that only changed fields are reported.
type Telemetry struct {
	last types.Status
}

// NewTelemetry returns a Telemetry that diffs against the startup status.
func NewTelemetry() *Telemetry {
	return &Telemetry{last: types.DefaultStatus}
}

// Update returns the lines for every field of st that differs from the
// previous snapshot. A non-zero clip count is always reported.
func (t *Telemetry) Update(st types.Status) []byte {
	var out []byte
	if st.Level != t.last.Level {
		out = appendLevel(out, st)
	}
	if st.Baseline != t.last.Baseline {
		out = appendBaseline(out, st)
	}
	if st.Mode != t.last.Mode {
		out = appendMode(out, st)
	}
	if st.State != t.last.State {
		out = appendState(out, st)
	}
	if st.ClippedFrames != 0 {
		out = fmt.Appendf(out, "clip %d\n", st.ClippedFrames)
	}
	t.last = st
	return out
}

// Snapshot returns the lines a newly connected client receives.
func (t *Telemetry) Snapshot() []byte {
	var out []byte
	out = appendLevel(out, t.last)
	out = appendBaseline(out, t.last)
	out = appendMode(out, t.last)
	return appendState(out, t.last)
}

func appendLevel(b []byte, st types.Status) []byte {
	return fmt.Appendf(b, "level %f\n", st.Level)
}

func appendBaseline(b []byte, st types.Status) []byte {
	return fmt.Appendf(b, "base_level %f\n", st.Baseline)
}

func appendMode(b []byte, st types.Status) []byte {
	return fmt.Appendf(b, "mode %s\n", st.Mode)
}

func appendState(b []byte, st types.Status) []byte {
	return fmt.Appendf(b, "state %s\n", st.State)
}
