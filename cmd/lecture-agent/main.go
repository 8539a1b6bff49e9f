package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/api"
	"github.com/snarg/lecture-agent/internal/archive"
	"github.com/snarg/lecture-agent/internal/config"
	"github.com/snarg/lecture-agent/internal/events"
	"github.com/snarg/lecture-agent/internal/kvstore"
	"github.com/snarg/lecture-agent/internal/library"
	"github.com/snarg/lecture-agent/internal/mqttpub"
	"github.com/snarg/lecture-agent/internal/recorder"
	"github.com/snarg/lecture-agent/internal/remote"
	"github.com/snarg/lecture-agent/internal/uploader"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "http listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace..error)")
	flag.StringVar(&overrides.RemoteURL, "remote-url", "", "transcription service base URL")
	flag.StringVar(&overrides.RecordingsDir, "recordings-dir", "", "directory for captured audio")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "directory for agent state")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("lecture-agent starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	// Durable state
	kv, err := kvstore.Open(filepath.Join(cfg.DataDir, "agent.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state store")
	}
	defer kv.Close()

	// Recording index + adoption of files dropped into the recordings dir
	lib := library.NewStore(kv, cfg.RecordingsDir, log)
	watcher := library.NewAdoptionWatcher(lib, cfg.RecordingsDir, log)
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("adoption watcher unavailable, external files found on demand only")
	} else {
		defer watcher.Stop()
	}

	// Capture
	if !recorder.CheckFFmpeg() {
		log.Warn().Msg("ffmpeg not found in PATH, recording will fail until installed")
	}
	device := recorder.NewFFmpegDevice(cfg.CaptureBackend, cfg.CaptureInput, log)
	var keepAlive recorder.KeepAlive = recorder.NoopKeepAlive{}
	if inhibitor := recorder.NewSystemdInhibitor(log); inhibitor.Available() {
		keepAlive = inhibitor
	}
	session := recorder.NewSession(recorder.Options{
		Dir:       cfg.RecordingsDir,
		Extension: cfg.CaptureFormat,
		Device:    device,
		KeepAlive: keepAlive,
		Bus:       bus,
		Log:       log,
	})

	// Optional archive of completed recordings
	var archiver *archive.Archiver
	if cfg.ArchiveEnabled() {
		store, err := archive.NewS3Store(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create archive store")
		}
		if err := store.HeadBucket(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.ArchiveBucket).Msg("archive bucket check failed")
		}
		archiver = archive.NewArchiver(store, 16, log)
		archiver.Start(2)
		defer archiver.Stop()
	}

	// Upload pipeline
	client := remote.NewClient(cfg.RemoteURL, cfg.RemoteToken, cfg.UploadTimeout)
	queue := uploader.New(uploader.Options{
		Client: client,
		Bus:    bus,
		OnCompleted: func(task uploader.Task) {
			if archiver != nil {
				archiver.Enqueue(task.FilePath)
			}
		},
		PollInterval:   cfg.PollInterval,
		PollDeadline:   cfg.PollDeadline,
		UploadAttempts: cfg.UploadAttempts,
		Log:            log,
	})
	defer queue.Close()

	// Optional MQTT event forwarding
	if cfg.MQTTEnabled() {
		pub, err := mqttpub.Connect(mqttpub.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Bus:         bus,
			Log:         log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer pub.Close()
	}

	// HTTP Server
	health := api.NewHealthHandler(version, startTime)
	health.AddCheck("capture", func() error {
		if !recorder.CheckFFmpeg() {
			return errors.New("ffmpeg not found in PATH")
		}
		return nil
	})
	health.AddCheck("state", kv.Ping)

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Session: session,
		Library: lib,
		Queue:   queue,
		Bus:     bus,
		Health:  health,
	}, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// A recording in progress is stopped, indexed, and queued so the artifact
	// survives the restart; the queue's own shutdown then cancels in-flight
	// network work.
	if path := session.Stop(); path != "" {
		base := filepath.Base(path)
		lib.Add(library.Recording{
			Path:      path,
			Title:     base[:len(base)-len(filepath.Ext(base))],
			CreatedAt: time.Now().UnixMilli(),
		})
		log.Info().Str("path", path).Msg("recording preserved during shutdown")
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("lecture-agent stopped")
}
