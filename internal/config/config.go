// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultBackend             = "arecord"
	DefaultSampleRate          = 44100
	DefaultChannels            = 2
	DefaultFramesPerBuffer     = 4410
	DefaultPrerollBuffers      = 25
	DefaultCalibrationBuffers  = 20
	DefaultNoiseThreshold      = 1.3
	DefaultMinRecordingSeconds = 15
	DefaultRecordingDir        = "."
	DefaultRecordingFormat     = "flac"
	DefaultControlPort         = 10123
	DefaultControlBacklog      = 10
	DefaultMaxConnections      = 20
	DefaultWriteTimeoutMs      = 50
	DefaultUploadBackend       = "none"
	DefaultUploadInterval      = time.Second
	DefaultUploadMaxRetryAge   = 24 * time.Hour
	DefaultZabbixPort          = 10051
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultLogMaxSizeMB        = 10
	DefaultLogMaxBackups       = 5
	DefaultLogMaxAgeDays       = 30
)

// AudioConfig holds capture settings.
type AudioConfig struct {
	Backend          string `json:"backend" validate:"omitempty,oneof=arecord ffmpeg portaudio wav"`
	Device           string `json:"device"`                                  // Device identifier or name (empty = platform default)
	File             string `json:"file" validate:"required_if=Backend wav"` // Input file for the wav backend
	Realtime         *bool  `json:"realtime"`                                // Pace file input at the stream rate (default true)
	SampleRate       int    `json:"sample_rate" validate:"omitempty,min=8000,max=192000"`
	Channels         int    `json:"channels" validate:"omitempty,min=1,max=8"`
	FramesPerBuffer  int    `json:"frames_per_buffer" validate:"omitempty,min=64"`
	FFmpegPath       string `json:"ffmpeg_path"`       // Path to FFmpeg binary (empty = use PATH)
	RealtimePriority bool   `json:"realtime_priority"` // Request SCHED_FIFO for the analysis loop
}

// DetectionConfig holds the sound detection parameters.
type DetectionConfig struct {
	PrerollBuffers      int     `json:"preroll_buffers" validate:"omitempty,min=3,max=1000"`
	CalibrationBuffers  int     `json:"calibration_buffers" validate:"omitempty,min=1,max=1000"`
	NoiseThreshold      float64 `json:"noise_threshold" validate:"omitempty,gt=1"`
	MinRecordingSeconds int     `json:"min_recording_seconds" validate:"gte=0"`
}

// RecordingConfig holds output file settings.
type RecordingConfig struct {
	Dir    string `json:"dir"`
	Format string `json:"format" validate:"omitempty,oneof=flac wav"`
}

// ControlConfig holds the remote-control server settings.
type ControlConfig struct {
	Port           int `json:"port" validate:"gte=0,lte=65535"`
	Backlog        int `json:"backlog" validate:"gte=0"`
	MaxConnections int `json:"max_connections" validate:"gte=0,lte=1024"`
	WriteTimeoutMs int `json:"write_timeout_ms" validate:"gte=0"`
}

// HTTPConfig holds the HTTP/WebSocket bridge settings.
type HTTPConfig struct {
	Port int `json:"port" validate:"gte=0,lte=65535"` // 0 disables the server
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// UploadConfig holds the upload collaborator settings.
type UploadConfig struct {
	Backend          string   `json:"backend" validate:"omitempty,oneof=none command s3"`
	Command          string   `json:"command" validate:"required_if=Backend command"`
	IntervalSeconds  int      `json:"interval_seconds" validate:"gte=0"`
	MaxRetryAgeHours int      `json:"max_retry_age_hours" validate:"gte=0"`
	S3               S3Config `json:"s3"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url"`
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`                               // Azure AD tenant ID
	ClientID     string `json:"client_id"`                               // App registration client ID
	ClientSecret string `json:"client_secret"`                           // App registration client secret
	FromAddress  string `json:"from_address" validate:"omitempty,email"` // Shared mailbox sender address
	Recipients   string `json:"recipients"`                              // Comma-separated recipient addresses
}

// ZabbixConfig holds Zabbix trapper settings.
type ZabbixConfig struct {
	Server string `json:"server"`
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Host   string `json:"host" validate:"required_with=Server"` // Monitored host name in Zabbix
	Key    string `json:"key" validate:"required_with=Server"`  // Trapper item key
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Email   EmailConfig   `json:"email"`
	Zabbix  ZabbixConfig  `json:"zabbix"`
}

// EventLogConfig holds the event log settings.
type EventLogConfig struct {
	Path string `json:"path"` // JSON lines file (empty = disabled)
}

// LoggingConfig holds process log settings.
type LoggingConfig struct {
	Level      string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `json:"format" validate:"omitempty,oneof=text json"`
	File       string `json:"file"` // Rotated log file (empty = stderr only)
	MaxSizeMB  int    `json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" validate:"gte=0"`
}

// Config holds all application configuration. It is read once and never written.
type Config struct {
	Audio         AudioConfig         `json:"audio"`
	Detection     DetectionConfig     `json:"detection"`
	Recording     RecordingConfig     `json:"recording"`
	Control       ControlConfig       `json:"control"`
	HTTP          HTTPConfig          `json:"http"`
	Upload        UploadConfig        `json:"upload"`
	Notifications NotificationsConfig `json:"notifications"`
	EventLog      EventLogConfig      `json:"event_log"`
	Logging       LoggingConfig       `json:"logging"`

	mu       sync.RWMutex
	filePath string
}

// validate is the shared validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Detection: DetectionConfig{MinRecordingSeconds: DefaultMinRecordingSeconds},
		filePath:  filePath,
	}
}

// Load reads config from file. A missing file leaves the defaults in place.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		return nil
	}

	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return c.validate()
}

// Path returns the configuration file path.
func (c *Config) Path() string {
	return c.filePath
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	verr := types.NewValidationError()

	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, e := range validationErrors {
			verr.Add(fieldPath(e.Namespace()), formatValidationMessage(e), e.Value())
		}
	}

	if c.Upload.Backend == "s3" {
		s3 := c.s3ConfigLocked()
		if !s3.IsConfigured() {
			verr.Add("upload.s3", "bucket and credentials are required for the s3 backend", c.Upload.S3.Bucket)
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if", "required_with":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

func (c *Config) s3ConfigLocked() types.S3Config {
	return types.S3Config{
		Endpoint:        c.Upload.S3.Endpoint,
		Bucket:          c.Upload.S3.Bucket,
		Prefix:          c.Upload.S3.Prefix,
		AccessKeyID:     c.Upload.S3.AccessKeyID,
		SecretAccessKey: c.Upload.S3.SecretAccessKey,
	}
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values with defaults applied.
type Snapshot struct {
	// Audio
	Backend          string
	Device           string
	File             string
	Realtime         bool
	SampleRate       int
	Channels         int
	FramesPerBuffer  int
	FFmpegPath       string
	RealtimePriority bool

	// Detection
	PrerollBuffers      int
	CalibrationBuffers  int
	NoiseThreshold      float64
	MinRecordingSeconds int

	// Recording
	RecordingDir    string
	RecordingFormat string

	// Control
	ControlPort    int
	ControlBacklog int
	MaxConnections int
	WriteTimeout   time.Duration

	// HTTP
	HTTPPort int

	// Upload
	UploadBackend     string
	UploadCommand     string
	UploadInterval    time.Duration
	UploadMaxRetryAge time.Duration
	S3                types.S3Config

	// Notifications
	WebhookURL string
	Graph      types.GraphConfig
	Zabbix     types.ZabbixConfig

	// Event log
	EventLogPath string

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	realtime := c.Audio.Realtime == nil || *c.Audio.Realtime

	return Snapshot{
		// Audio
		Backend:          cmp.Or(c.Audio.Backend, DefaultBackend),
		Device:           c.Audio.Device,
		File:             c.Audio.File,
		Realtime:         realtime,
		SampleRate:       cmp.Or(c.Audio.SampleRate, DefaultSampleRate),
		Channels:         cmp.Or(c.Audio.Channels, DefaultChannels),
		FramesPerBuffer:  cmp.Or(c.Audio.FramesPerBuffer, DefaultFramesPerBuffer),
		FFmpegPath:       c.Audio.FFmpegPath,
		RealtimePriority: c.Audio.RealtimePriority,

		// Detection
		PrerollBuffers:      cmp.Or(c.Detection.PrerollBuffers, DefaultPrerollBuffers),
		CalibrationBuffers:  cmp.Or(c.Detection.CalibrationBuffers, DefaultCalibrationBuffers),
		NoiseThreshold:      cmp.Or(c.Detection.NoiseThreshold, DefaultNoiseThreshold),
		MinRecordingSeconds: c.Detection.MinRecordingSeconds,

		// Recording
		RecordingDir:    cmp.Or(c.Recording.Dir, DefaultRecordingDir),
		RecordingFormat: cmp.Or(c.Recording.Format, DefaultRecordingFormat),

		// Control
		ControlPort:    cmp.Or(c.Control.Port, DefaultControlPort),
		ControlBacklog: cmp.Or(c.Control.Backlog, DefaultControlBacklog),
		MaxConnections: cmp.Or(c.Control.MaxConnections, DefaultMaxConnections),
		WriteTimeout:   time.Duration(cmp.Or(c.Control.WriteTimeoutMs, DefaultWriteTimeoutMs)) * time.Millisecond,

		// HTTP
		HTTPPort: c.HTTP.Port,

		// Upload
		UploadBackend:     cmp.Or(c.Upload.Backend, DefaultUploadBackend),
		UploadCommand:     c.Upload.Command,
		UploadInterval:    cmp.Or(time.Duration(c.Upload.IntervalSeconds)*time.Second, DefaultUploadInterval),
		UploadMaxRetryAge: cmp.Or(time.Duration(c.Upload.MaxRetryAgeHours)*time.Hour, DefaultUploadMaxRetryAge),
		S3:                c.s3ConfigLocked(),

		// Notifications
		WebhookURL: c.Notifications.Webhook.URL,
		Graph: types.GraphConfig{
			TenantID:     c.Notifications.Email.TenantID,
			ClientID:     c.Notifications.Email.ClientID,
			ClientSecret: c.Notifications.Email.ClientSecret,
			FromAddress:  c.Notifications.Email.FromAddress,
			Recipients:   c.Notifications.Email.Recipients,
		},
		Zabbix: types.ZabbixConfig{
			Server: c.Notifications.Zabbix.Server,
			Port:   cmp.Or(c.Notifications.Zabbix.Port, DefaultZabbixPort),
			Host:   c.Notifications.Zabbix.Host,
			Key:    c.Notifications.Zabbix.Key,
		},

		// Event log
		EventLogPath: c.EventLog.Path,

		// Logging
		LogLevel:      cmp.Or(c.Logging.Level, DefaultLogLevel),
		LogFormat:     cmp.Or(c.Logging.Format, DefaultLogFormat),
		LogFile:       c.Logging.File,
		LogMaxSizeMB:  cmp.Or(c.Logging.MaxSizeMB, DefaultLogMaxSizeMB),
		LogMaxBackups: cmp.Or(c.Logging.MaxBackups, DefaultLogMaxBackups),
		LogMaxAgeDays: cmp.Or(c.Logging.MaxAgeDays, DefaultLogMaxAgeDays),
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return util.IsConfigured(s.Graph.TenantID, s.Graph.ClientID, s.Graph.ClientSecret,
		s.Graph.FromAddress, s.Graph.Recipients)
}
