package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wachiwi/camwatch/pkg/camera"
	"github.com/wachiwi/camwatch/pkg/config"
	"github.com/wachiwi/camwatch/pkg/device"
	"github.com/wachiwi/camwatch/pkg/device/ffmpeg"
	"github.com/wachiwi/camwatch/pkg/device/opencv"
	"github.com/wachiwi/camwatch/pkg/logger"
	"github.com/wachiwi/camwatch/pkg/reaper"
	"github.com/wachiwi/camwatch/pkg/recording"
	"github.com/wachiwi/camwatch/pkg/telemetry"
)

func newOpener(c config.CaptureConfig, binary string) (device.Opener, error) {
	switch c.Backend {
	case "opencv":
		return opencv.Opener{}, nil
	case "ffmpeg":
		return ffmpeg.Opener{
			Binary:      binary,
			InputFormat: c.InputFormat,
			FPS:         c.FPS,
			Width:       c.Width,
			Height:      c.Height,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", c.Backend)
	}
}

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "path", *configPath, "error", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	slog.Info("Config loaded", "path", *configPath, "recordings", cfg.RecordingsDir, "devices", len(cfg.VideoDevices))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			slog.Error("Failed to setup telemetry", "error", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					slog.Error("Failed to shutdown telemetry", "error", err)
				}
			}()
		}
	}
	metrics, err := telemetry.NewRecorder()
	if err != nil {
		slog.Error("Failed to create metrics", "error", err)
	}

	// --- Cameras ---
	opener, err := newOpener(cfg.Capture, cfg.Encoder.Binary)
	if err != nil {
		logger.Fatal("Failed to create capture backend", "error", err)
	}
	codec, err := recording.CodecFor(cfg.Recording.ImageExt)
	if err != nil {
		logger.Fatal("Failed to create frame codec", "error", err)
	}

	registry := camera.NewRegistry(cfg.UniqueDevices(), camera.Options{
		RecordingsDir: cfg.RecordingsDir,
		Opener:        opener,
		Codec:         codec,
		VideoExt:      cfg.Recording.VideoExt,
		Encoder: recording.FFmpeg{
			Binary:      cfg.Encoder.Binary,
			Codec:       cfg.Encoder.Codec,
			PixelFormat: cfg.Encoder.PixelFormat,
		},
		RingDuration: cfg.Recording.RingDuration,
		ClipDuration: cfg.Recording.ClipDuration,
		QueueSize:    cfg.Recording.QueueSize,
		Policy: camera.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			ResetAfter:  cfg.Retry.ResetAfter,
			BackOff:     backoff.NewConstantBackOff(cfg.Retry.Backoff),
		},
		Clock:   camera.SystemClock,
		Metrics: metrics,
	})
	registry.StartAll(ctx)

	// --- Reaper ---
	r := reaper.New(cfg.RecordingsDir, cfg.Reaper.MaxAge, metrics)
	scheduler, err := r.Schedule(cfg.Reaper.Interval)
	if err != nil {
		logger.Fatal("Failed to start reaper", "error", err)
	}

	// --- HTTP ---
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(ctx, cfg, registry),
	}
	go func() {
		slog.Info("Server is running", "addr", cfg.Server.Addr, "auth", cfg.Server.AuthEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown server", "error", err)
	}

	<-scheduler.Stop().Done()
	// Waits for capture loops and drains pending batches and encodes.
	registry.Close()
	slog.Info("Shutdown complete")
}
