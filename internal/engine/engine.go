// Package engine runs the analysis loop: it pulls one buffer per tick from the
// capture source, keeps the pre-roll ring and noise floor, drives the
// recording state machine and publishes a status snapshot every tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/oszuidwest/zwfm-autorecorder/internal/audio"
	"github.com/oszuidwest/zwfm-autorecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-autorecorder/internal/recording"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// Defaults for the detection parameters.
const (
	DefaultPrerollBuffers      = 25
	DefaultCalibrationBuffers  = 20
	DefaultNoiseThreshold      = 1.3
	DefaultMinRecordingSeconds = 15
	DefaultCommandQueue        = 64
	DefaultStatusQueue         = 64
)

// Sentinel errors for the analysis loop. Both are fatal.
var (
	ErrCommandQueueFull = errors.New("command queue full")
	ErrStatusQueueFull  = errors.New("status queue full")
)

// Config holds the parameters of the analysis loop.
type Config struct {
	Format              audio.Format
	PrerollBuffers      int     // Ring capacity N
	CalibrationBuffers  int     // Buffers averaged into the noise floor
	NoiseThreshold      float64 // Multiple of the noise floor that counts as loud
	MinRecordingSeconds int     // Automatic recordings shorter than this are discarded
	Dir                 string  // Recording output directory
	Encoder             recording.EncoderConfig
	CommandQueue        int
	StatusQueue         int
	RealtimePriority    bool // Request SCHED_FIFO for the loop thread

	// Optional hooks.
	NewEncoder recording.EncoderFactory
	EventLog   *eventlog.Logger
	OnFinished func(res recording.Result) // Called for every kept recording
	Now        func() time.Time
}

// Engine is the analysis loop. Step and Run must be called from one goroutine;
// Submit and Status are safe to use from any goroutine.
type Engine struct {
	cfg        Config
	src        audio.Source
	ring       *audio.Ring
	scratch    []int16
	commands   chan types.Command
	status     chan types.Status
	minBuffers int

	mode       types.Mode
	state      types.State
	tick       int
	calibSum   float64
	calibCount int
	baseline   float64
	loudBufs   int
	session    *recording.Session

	overflowLog rate.Sometimes
}

// New creates an engine reading from src.
func New(src audio.Source, cfg *Config) *Engine {
	c := *cfg
	if c.PrerollBuffers <= 0 {
		c.PrerollBuffers = DefaultPrerollBuffers
	}
	if c.CalibrationBuffers <= 0 {
		c.CalibrationBuffers = DefaultCalibrationBuffers
	}
	if c.NoiseThreshold <= 0 {
		c.NoiseThreshold = DefaultNoiseThreshold
	}
	if c.CommandQueue <= 0 {
		c.CommandQueue = DefaultCommandQueue
	}
	if c.StatusQueue <= 0 {
		c.StatusQueue = DefaultStatusQueue
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Engine{
		cfg:         c,
		src:         src,
		ring:        audio.NewRing(c.PrerollBuffers, c.Format.BufferLen()),
		scratch:     make([]int16, c.Format.BufferLen()),
		commands:    make(chan types.Command, c.CommandQueue),
		status:      make(chan types.Status, c.StatusQueue),
		minBuffers:  MinBuffers(c.MinRecordingSeconds, c.Format),
		mode:        types.DefaultStatus.Mode,
		state:       types.DefaultStatus.State,
		overflowLog: rate.Sometimes{Interval: time.Second},
	}
}

// MinBuffers returns the number of buffers that cover at least seconds of audio.
func MinBuffers(seconds int, f audio.Format) int {
	if f.FramesPerBuffer <= 0 {
		return 0
	}
	frames := seconds * f.SampleRate
	return (frames + f.FramesPerBuffer - 1) / f.FramesPerBuffer
}

// Submit queues a command for the next tick. It never blocks.
func (e *Engine) Submit(cmd types.Command) error {
	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Status returns the channel carrying one snapshot per tick. It is closed when Run returns.
func (e *Engine) Status() <-chan types.Status {
	return e.status
}

// Run executes ticks until ctx is cancelled or a fatal error occurs.
// An open recording is finished normally before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.status)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if e.cfg.RealtimePriority {
		if err := util.RequestRealtimePriority(); err != nil {
			slog.Warn("realtime priority unavailable", "error", err)
		}
	}

	slog.Info("analysis loop started",
		"sample_rate", e.cfg.Format.SampleRate,
		"frames_per_buffer", e.cfg.Format.FramesPerBuffer,
		"preroll_buffers", e.ring.Len(),
		"min_buffers", e.minBuffers)

	for {
		if ctx.Err() != nil {
			return e.shutdown()
		}
		if err := e.Step(); err != nil {
			// Interrupting the source to stop a blocked read surfaces as a read error.
			if ctx.Err() != nil || errors.Is(err, audio.ErrInterrupted) {
				return e.shutdown()
			}
			return errors.Join(err, e.shutdown())
		}
	}
}

// Step runs one tick. A buffer lost to overflow skips the tick entirely.
func (e *Engine) Step() error {
	if err := e.src.ReadBuffer(e.scratch); err != nil {
		if errors.Is(err, audio.ErrOverflow) {
			e.overflowLog.Do(func() {
				slog.Warn("input overflow, buffer dropped", "tick", e.tick)
			})
			return nil
		}
		return fmt.Errorf("read buffer: %w", err)
	}

	slot := e.ring.Slot(e.tick)
	buf := e.ring.Buffer(slot)
	copy(buf, e.scratch)
	l := audio.Analyze(buf)
	e.ring.Store(slot, l)

	if e.state != types.StateInitializing {
		e.loudBufs = e.ring.LoudCount(e.baseline * e.cfg.NoiseThreshold)
	} else {
		e.loudBufs = 0
	}

	if err := e.drainCommands(slot); err != nil {
		return err
	}
	if err := e.detect(slot); err != nil {
		return err
	}

	if e.state == types.StateRecording {
		if err := e.session.Record(buf); err != nil {
			return fmt.Errorf("encode buffer: %w", err)
		}
	}

	// A tick that reinitialized contributes nothing to calibration.
	if e.state == types.StateInitializing && e.tick >= 0 {
		e.calibrate(l.RMS)
	}

	e.tick++
	return e.publish(l)
}

func (e *Engine) drainCommands(slot int) error {
	for {
		select {
		case cmd := <-e.commands:
			if err := e.apply(cmd, slot); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (e *Engine) apply(cmd types.Command, slot int) error {
	slog.Debug("command", "command", cmd.String(), "state", e.state.String())
	if cmd.ForcesManual() {
		e.mode = types.ModeManual
	}

	switch cmd {
	case types.CommandManual:
		e.mode = types.ModeManual
	case types.CommandAuto:
		e.mode = types.ModeAuto
	case types.CommandRecord:
		if e.state == types.StateIdle {
			return e.start(slot, false)
		}
	case types.CommandInitialize:
		if e.state.HasSession() {
			if err := e.finish(true); err != nil {
				return err
			}
		}
		e.reinitialize()
	case types.CommandPause:
		if e.state == types.StateRecording {
			e.state = types.StatePaused
			slog.Info("recording paused", "session", e.session.ID)
			e.logEvent(eventlog.RecordingPaused, e.session.ID, &eventlog.RecordingDetails{Mode: e.mode.String()})
		}
	case types.CommandUnpause:
		if e.state == types.StatePaused {
			e.state = types.StateRecording
			slog.Info("recording resumed", "session", e.session.ID)
			e.logEvent(eventlog.RecordingResumed, e.session.ID, &eventlog.RecordingDetails{Mode: e.mode.String()})
		}
	case types.CommandStop:
		if e.state.HasSession() {
			return e.finish(false)
		}
	case types.CommandCancel:
		if e.state.HasSession() {
			return e.finish(true)
		}
	}
	return nil
}

// detect evaluates the automatic transitions.
func (e *Engine) detect(slot int) error {
	if e.mode != types.ModeAuto {
		return nil
	}
	switch e.state {
	case types.StateIdle:
		if e.loudBufs > e.ring.Len()/3 {
			return e.start(slot, true)
		}
	case types.StateRecording:
		if e.loudBufs == 0 && e.session.Buffers() >= e.minBuffers {
			return e.finish(false)
		}
	}
	return nil
}

// start opens a session. With preroll the ring history is encoded first and
// counted as N buffers.
func (e *Engine) start(slot int, preroll bool) error {
	initial := 0
	if preroll {
		initial = e.ring.Len()
	}

	s, err := recording.Open(e.cfg.Dir, e.cfg.Now(), &e.cfg.Encoder, e.cfg.NewEncoder, initial)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	if preroll {
		if err := e.ring.Preroll(slot, s.Feed); err != nil {
			_, finishErr := s.Finish(recording.DiscardCancelled, 0)
			return errors.Join(fmt.Errorf("encode preroll: %w", err), finishErr)
		}
	}

	e.session = s
	e.state = types.StateRecording
	slog.Info("recording started",
		"session", s.ID,
		"file", s.TempPath(),
		"mode", e.mode.String(),
		"loud_buffers", e.loudBufs,
		"preroll", preroll)
	e.logEvent(eventlog.RecordingStarted, s.ID, &eventlog.RecordingDetails{
		Filename:    s.TempPath(),
		Mode:        e.mode.String(),
		LoudBuffers: e.loudBufs,
		Preroll:     preroll,
	})
	return nil
}

// finish closes the open session and returns to IDLE.
func (e *Engine) finish(cancelled bool) error {
	s := e.session
	e.session = nil
	e.state = types.StateIdle

	seconds := s.Buffers() * e.cfg.Format.FramesPerBuffer / e.cfg.Format.SampleRate
	d := recording.Keep
	switch {
	case cancelled:
		d = recording.DiscardCancelled
	case e.mode == types.ModeAuto && seconds < e.cfg.MinRecordingSeconds:
		d = recording.DiscardTooShort
	}

	res, err := s.Finish(d, seconds)
	if err != nil {
		return fmt.Errorf("finish recording: %w", err)
	}

	if d == recording.Keep {
		slog.Info("recording saved", "session", res.ID, "file", res.Path, "seconds", seconds)
		e.logEvent(eventlog.RecordingSaved, res.ID, &eventlog.RecordingDetails{
			Filename: res.Path,
			Mode:     e.mode.String(),
			Seconds:  seconds,
		})
		if e.cfg.OnFinished != nil {
			e.cfg.OnFinished(res)
		}
	} else {
		slog.Info("recording discarded", "session", res.ID, "reason", d.String(), "seconds", seconds)
		e.logEvent(eventlog.RecordingDiscarded, res.ID, &eventlog.RecordingDetails{
			Filename: res.Path,
			Mode:     e.mode.String(),
			Seconds:  seconds,
			Reason:   d.String(),
		})
	}
	return nil
}

func (e *Engine) reinitialize() {
	e.state = types.StateInitializing
	e.ring.Reset()
	e.baseline = 0
	e.calibSum = 0
	e.calibCount = 0
	e.loudBufs = 0
	e.tick = -1 // The increment at the end of this tick restarts at slot 0
	slog.Info("recalibrating noise floor")
}

func (e *Engine) calibrate(rms float64) {
	if e.calibCount < e.cfg.CalibrationBuffers {
		e.calibSum += rms
		e.calibCount++
	}
	if e.calibCount == e.cfg.CalibrationBuffers {
		e.baseline = e.calibSum / float64(e.cfg.CalibrationBuffers)
		e.state = types.StateIdle
		slog.Info("noise floor calibrated", "baseline", e.baseline)
		if err := e.cfg.EventLog.Log(&eventlog.Event{
			Type:    eventlog.Calibrated,
			Details: &eventlog.RecordingDetails{Baseline: e.baseline},
		}); err != nil {
			slog.Warn("event log write failed", "error", err)
		}
	}
}

func (e *Engine) publish(l audio.Loudness) error {
	st := types.Status{
		Mode:          e.mode,
		State:         e.state,
		Level:         l.RMS,
		ClippedFrames: l.Clips,
		Baseline:      e.baseline,
	}
	select {
	case e.status <- st:
		return nil
	default:
		return ErrStatusQueueFull
	}
}

// shutdown finishes an open session as a normal stop.
func (e *Engine) shutdown() error {
	if !e.state.HasSession() {
		return nil
	}
	slog.Info("finishing open recording before exit")
	return e.finish(false)
}

func (e *Engine) logEvent(t eventlog.EventType, sessionID string, d *eventlog.RecordingDetails) {
	if err := e.cfg.EventLog.LogRecording(t, sessionID, d); err != nil {
		slog.Warn("event log write failed", "event", t, "error", err)
	}
}
