// Package types provides shared type definitions used across the recorder.
package types

// State is the recording state machine state.
type State uint8

const (
	// StateInitializing indicates the noise floor is being calibrated.
	StateInitializing State = iota
	// StateIdle indicates the recorder is waiting for sound.
	StateIdle
	// StateRecording indicates audio is being written to a session.
	StateRecording
	// StatePaused indicates a session is open but not being written.
	StatePaused
)

// String returns the telemetry name of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// HasSession reports whether a recording session exists in this state.
func (s State) HasSession() bool {
	return s == StateRecording || s == StatePaused
}

// Mode selects whether automatic detection drives transitions.
type Mode uint8

const (
	// ModeAuto lets loudness detection start and stop recordings.
	ModeAuto Mode = iota
	// ModeManual leaves all transitions to operator commands.
	ModeManual
)

// String returns the telemetry name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Command is an operator instruction for the analysis loop.
type Command uint8

// Commands in protocol match order.
const (
	CommandManual Command = iota
	CommandAuto
	CommandRecord
	CommandInitialize
	CommandPause
	CommandUnpause
	CommandStop
	CommandCancel
)

// Commands lists every command in the order the control protocol matches them.
var Commands = [...]Command{
	CommandManual,
	CommandAuto,
	CommandRecord,
	CommandInitialize,
	CommandPause,
	CommandUnpause,
	CommandStop,
	CommandCancel,
}

// String returns the protocol keyword of the command.
func (c Command) String() string {
	switch c {
	case CommandManual:
		return "manual"
	case CommandAuto:
		return "auto"
	case CommandRecord:
		return "record"
	case CommandInitialize:
		return "initialize"
	case CommandPause:
		return "pause"
	case CommandUnpause:
		return "unpause"
	case CommandStop:
		return "stop"
	case CommandCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ForcesManual reports whether issuing the command switches the mode to manual.
func (c Command) ForcesManual() bool {
	return c != CommandManual && c != CommandAuto
}

// Status is the snapshot published by the analysis loop once per tick.
type Status struct {
	Mode          Mode    `json:"-"`
	State         State   `json:"-"`
	Level         float64 `json:"level"`          // RMS of the last buffer, 0..1
	ClippedFrames int     `json:"clipped_frames"` // Samples above the clip threshold
	Baseline      float64 `json:"base_level"`     // Calibrated noise floor, 0 while initializing
}

// DefaultStatus is the status before the first tick.
var DefaultStatus = Status{Mode: ModeAuto, State: StateInitializing}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`          // Running version
	Latest      string `json:"latest,omitempty"` // Latest release version
	UpdateAvail bool   `json:"update_available"` // Whether an update is available
	Commit      string `json:"commit,omitempty"` // Git commit hash
	BuildTime   string `json:"build_time,omitempty"`
}

// GraphConfig is the configuration for Microsoft Graph email notifications.
type GraphConfig struct {
	TenantID     string // Azure AD tenant ID
	ClientID     string // App registration client ID
	ClientSecret string // App registration client secret
	FromAddress  string // Shared mailbox sender address
	Recipients   string // Comma-separated recipient addresses
}

// ZabbixConfig addresses a Zabbix trapper item.
type ZabbixConfig struct {
	Server string
	Port   int
	Host   string
	Key    string
}

// IsConfigured reports whether events can be sent.
func (c *ZabbixConfig) IsConfigured() bool {
	return c.Server != "" && c.Host != "" && c.Key != ""
}

// S3Config contains S3-compatible storage settings.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether the bucket and credentials are set.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}
