package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wachiwi/camwatch/pkg/client"
	"github.com/wachiwi/camwatch/pkg/logger"
	"github.com/wachiwi/camwatch/pkg/telemetry"
)

type gauges struct {
	errored    metric.Int64Gauge
	running    metric.Int64Gauge
	sequence   metric.Int64Gauge
	queued     metric.Int64Gauge
	stalled    metric.Int64Gauge
	recordings metric.Int64Gauge
	bytes      metric.Int64Gauge
}

func newGauges(meter metric.Meter) (*gauges, error) {
	var (
		g   gauges
		err error
	)
	if g.errored, err = meter.Int64Gauge("camwatch.camera.errored", metric.WithDescription("1 if the camera failed permanently, 0 otherwise")); err != nil {
		return nil, err
	}
	if g.running, err = meter.Int64Gauge("camwatch.camera.running", metric.WithDescription("1 if the capture loop is running, 0 otherwise")); err != nil {
		return nil, err
	}
	if g.sequence, err = meter.Int64Gauge("camwatch.camera.sequence", metric.WithDescription("Sequence number of the newest frame")); err != nil {
		return nil, err
	}
	if g.queued, err = meter.Int64Gauge("camwatch.camera.queued_batches", metric.WithDescription("Frame batches waiting to be written"), metric.WithUnit("{batches}")); err != nil {
		return nil, err
	}
	if g.stalled, err = meter.Int64Gauge("camwatch.camera.stalled_batches", metric.WithDescription("Frame batches the capture loop waited on because the save queue was full"), metric.WithUnit("{batches}")); err != nil {
		return nil, err
	}
	if g.recordings, err = meter.Int64Gauge("camwatch.recordings.count", metric.WithDescription("Encoded chunks on disk"), metric.WithUnit("{files}")); err != nil {
		return nil, err
	}
	if g.bytes, err = meter.Int64Gauge("camwatch.recordings.size", metric.WithDescription("Size of encoded chunks on disk"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return &g, nil
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func poll(ctx context.Context, c *client.Client, g *gauges) {
	statuses, err := c.Cameras(ctx)
	if err != nil {
		slog.Error("Failed to fetch camera state", "error", err)
		return
	}
	for _, st := range statuses {
		attrs := metric.WithAttributes(attribute.Int("camera", st.Index))
		g.errored.Record(ctx, boolValue(st.Errored), attrs)
		g.running.Record(ctx, boolValue(st.Running), attrs)
		g.sequence.Record(ctx, int64(st.Sequence), attrs)
		g.queued.Record(ctx, int64(st.QueuedBatches), attrs)
		g.stalled.Record(ctx, int64(st.StalledBatches), attrs)
		if st.Errored {
			slog.Warn("Camera failed", "camera", st.Index, "error", st.Error)
		}
	}

	recordings, err := c.Recordings(ctx)
	if err != nil {
		slog.Error("Failed to fetch recordings", "error", err)
		return
	}
	perCamera := map[string][2]int64{}
	for _, r := range recordings {
		v := perCamera[r.Camera]
		v[0]++
		v[1] += r.Size
		perCamera[r.Camera] = v
	}
	for cam, v := range perCamera {
		attrs := metric.WithAttributes(attribute.String("camera_dir", cam))
		g.recordings.Record(ctx, v[0], attrs)
		g.bytes.Record(ctx, v[1], attrs)
	}

	slog.Info("Recorded metrics", "cameras", len(statuses), "recordings", len(recordings))
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "camwatch server address")
	endpoint := flag.String("otel-endpoint", "otel-collector:4317", "OTLP gRPC endpoint")
	interval := flag.Duration("interval", 15*time.Second, "poll interval")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup(*level, "text")

	// Credentials come from the environment to keep them out of ps output.
	c, err := client.New(*addr, os.Getenv("CAMWATCH_USER"), os.Getenv("CAMWATCH_PASSWORD"))
	if err != nil {
		logger.Fatal("Failed to create camwatch client", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "camwatch-monitor", *endpoint)
	if err != nil {
		logger.Fatal("Failed to setup telemetry", "error", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
	}()

	g, err := newGauges(otel.Meter("camwatch-monitor"))
	if err != nil {
		logger.Fatal("Failed to create gauges", "error", err)
	}

	slog.Info("Starting camwatch monitor loop", "addr", *addr, "interval", *interval)
	poll(ctx, c, g)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll(ctx, c, g)
		}
	}
}
