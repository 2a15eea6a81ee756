// Package main runs the automatic recorder: it listens to an audio input,
// records whenever something is played and uploads the results.
//
// Usage:
//
//	autorecorder [-config path/to/config.json] [-log-level debug] [-log-format json]
//
// If -config is not specified, the recorder looks for config.json in the same
// directory as the binary. A missing file means all defaults.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/audio"
	"github.com/oszuidwest/zwfm-autorecorder/internal/config"
	"github.com/oszuidwest/zwfm-autorecorder/internal/control"
	"github.com/oszuidwest/zwfm-autorecorder/internal/engine"
	"github.com/oszuidwest/zwfm-autorecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-autorecorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-autorecorder/internal/notify"
	"github.com/oszuidwest/zwfm-autorecorder/internal/recording"
	"github.com/oszuidwest/zwfm-autorecorder/internal/upload"
	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// shutdownTimeout bounds the HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	listDevices := flag.Bool("list-devices", false, "List audio input devices and exit")
	logLevel := flag.String("log-level", "", "Override the log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Override the log format (text, json)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("autorecorder %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		return
	}

	if *listDevices {
		printDevices(os.Stdout)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()
	snap.LogLevel = cmpFlag(*logLevel, snap.LogLevel)
	snap.LogFormat = cmpFlag(*logFormat, snap.LogFormat)

	closeLog, err := setupLogging(&snap)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	slog.Info("starting autorecorder", "version", Version, "config", *configPath)

	err = run(&snap)
	if err != nil {
		slog.Error("autorecorder stopped", "error", err)
	} else {
		slog.Info("shutdown complete")
	}
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func cmpFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

// setupLogging installs the default slog logger. When a log file is set,
// output goes to both stderr and a rotated file.
func setupLogging(s *config.Snapshot) (func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", s.LogLevel)
	}

	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if s.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   s.LogFile,
			MaxSize:    s.LogMaxSizeMB,
			MaxBackups: s.LogMaxBackups,
			MaxAge:     s.LogMaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rotator)
		closeFn = rotator.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(s.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", s.LogFormat)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

func printDevices(w io.Writer) {
	for _, d := range audio.Devices() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Name)
	}
	devices, err := audio.PortAudioDevices()
	if err != nil {
		slog.Debug("portaudio devices unavailable", "error", err)
		return
	}
	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "portaudio:%s\t%s\n", d.ID, d.Name)
	}
}

// run wires the recorder together and blocks until a shutdown signal or a
// fatal error.
func run(s *config.Snapshot) error {
	format := audio.Format{
		SampleRate:      s.SampleRate,
		Channels:        s.Channels,
		FramesPerBuffer: s.FramesPerBuffer,
	}
	recFormat := recording.Format(s.RecordingFormat)
	ffmpegPath, ffmpegErr := ffmpeg.Lookup(s.FFmpegPath)

	if err := prepareRecordingDir(s.RecordingDir, recFormat); err != nil {
		return err
	}
	if recFormat == recording.FormatFLAC && ffmpegErr != nil {
		return fmt.Errorf("flac recording requires ffmpeg: %w", ffmpegErr)
	}

	events, err := eventlog.NewLogger(s.EventLogPath)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = events.Close() }()

	backend, err := upload.NewBackend(s.UploadBackend, s.UploadCommand, &s.S3)
	if err != nil {
		return fmt.Errorf("create upload backend: %w", err)
	}

	notifier := notify.NewNotifier(&notify.Config{WebhookURL: s.WebhookURL, Graph: s.Graph, Zabbix: s.Zabbix})
	slog.Info("notifications", "webhook", s.HasWebhook(), "email", s.HasGraph(), "zabbix", s.Zabbix.IsConfigured())
	defer notifier.Wait()

	var uploader *upload.Uploader
	if backend != nil {
		uploader = upload.New(&upload.Config{
			Dir:         s.RecordingDir,
			Format:      recFormat,
			Backend:     backend,
			Interval:    s.UploadInterval,
			MaxRetryAge: s.UploadMaxRetryAge,
			EventLog:    events,
			OnAbandoned: notifier.UploadAbandoned,
		})
	}

	src, err := audio.Open(&audio.OpenConfig{
		Backend:    audio.Backend(s.Backend),
		Device:     s.Device,
		FFmpegPath: ffmpegPath,
		File:       s.File,
		Realtime:   s.Realtime,
		Format:     format,
	})
	if err != nil {
		return fmt.Errorf("open audio input: %w", err)
	}
	var closeOnce sync.Once
	closeSource := func() {
		closeOnce.Do(func() {
			if err := src.Close(); err != nil {
				slog.Debug("audio input close", "error", err)
			}
		})
	}
	defer closeSource()

	eng := engine.New(src, &engine.Config{
		Format:              format,
		PrerollBuffers:      s.PrerollBuffers,
		CalibrationBuffers:  s.CalibrationBuffers,
		NoiseThreshold:      s.NoiseThreshold,
		MinRecordingSeconds: s.MinRecordingSeconds,
		Dir:                 s.RecordingDir,
		Encoder: recording.EncoderConfig{
			Format:     recFormat,
			SampleRate: s.SampleRate,
			Channels:   s.Channels,
			FFmpegPath: ffmpegPath,
		},
		RealtimePriority: s.RealtimePriority,
		EventLog:         events,
		OnFinished: func(res recording.Result) {
			notifier.RecordingSaved(res)
			if uploader != nil {
				uploader.Notify()
			}
		},
	})

	hub := control.NewHub(&control.HubConfig{
		MaxConnections: s.MaxConnections,
		Status:         eng.Status(),
		Submit:         eng.Submit,
	})

	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(s.ControlPort))
	ln, err := control.Listen(addr, s.ControlBacklog)
	if err != nil {
		return fmt.Errorf("listen on control port: %w", err)
	}
	slog.Info("control port listening", "addr", ln.Addr().String(), "max_connections", s.MaxConnections)

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// A blocked read only returns once the source is interrupted.
	context.AfterFunc(ctx, src.Interrupt)

	var wg sync.WaitGroup
	fail := func(name string, err error) {
		if err != nil {
			cancel(fmt.Errorf("%s: %w", name, err))
		}
	}

	var engineErr error
	wg.Go(func() {
		engineErr = eng.Run(ctx)
		closeSource()
		if errors.Is(engineErr, io.EOF) {
			slog.Info("audio input ended")
			engineErr = nil
		}
		// The hub stops on its own when the status channel closes.
		cancel(engineErr)
	})
	wg.Go(func() { fail("control hub", hub.Run(ctx)) })
	wg.Go(func() { fail("control accept", hub.Accept(ctx, ln, s.WriteTimeout)) })
	if uploader != nil {
		wg.Go(func() { fail("uploader", uploader.Run(ctx)) })
	}

	if s.HTTPPort > 0 {
		srv := NewServer(s.HTTPPort, hub, s.EventLogPath, s.WriteTimeout)
		httpServer := srv.Start()
		defer func() {
			srv.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()

	if engineErr != nil {
		return engineErr
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// prepareRecordingDir verifies the output directory and clears partial files
// left by an earlier run.
func prepareRecordingDir(dir string, f recording.Format) error {
	if err := util.CheckPathWritable(dir); err != nil {
		return fmt.Errorf("check recording dir: %w", err)
	}
	n, err := recording.RemoveStaleTemp(dir, f)
	if err != nil {
		return fmt.Errorf("remove stale recordings: %w", err)
	}
	if n > 0 {
		slog.Warn("removed unfinished recordings from a previous run", "count", n, "dir", dir)
	}
	return nil
}
