// Package reaper deletes recordings older than a retention age.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wachiwi/camwatch/pkg/logger"
	"github.com/wachiwi/camwatch/pkg/telemetry"
)

// Reaper sweeps a directory tree and removes files whose creation time is
// older than MaxAge. Directories are kept.
type Reaper struct {
	Root   string
	MaxAge time.Duration

	Now       func() time.Time
	CreatedAt func(path string, info fs.FileInfo) time.Time
	Remove    func(path string) error
	Metrics   *telemetry.Recorder
}

func New(root string, maxAge time.Duration, metrics *telemetry.Recorder) *Reaper {
	return &Reaper{
		Root:      root,
		MaxAge:    maxAge,
		Now:       time.Now,
		CreatedAt: CreationTime,
		Remove:    os.Remove,
		Metrics:   metrics,
	}
}

// Sweep walks the tree once in name order. The first error aborts the
// sweep; files removed before it stay removed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.Now().Add(-r.MaxAge)
	removed := 0

	err := r.sweepDir(ctx, r.Root, cutoff, &removed)
	if errors.Is(err, fs.ErrNotExist) && removed == 0 {
		if _, statErr := os.Stat(r.Root); errors.Is(statErr, fs.ErrNotExist) {
			// nothing recorded yet
			err = nil
		}
	}
	r.Metrics.FilesReaped(ctx, removed)
	return removed, err
}

func (r *Reaper) sweepDir(ctx context.Context, dir string, cutoff time.Time, removed *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := r.sweepDir(ctx, path, cutoff, removed); err != nil {
				return err
			}
			continue
		}

		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !r.CreatedAt(path, info).Before(cutoff) {
			continue
		}
		if err := r.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		*removed++
		slog.Debug("Reaped recording", "path", path)
	}
	return nil
}

func (r *Reaper) run() {
	start := time.Now()
	n, err := r.Sweep(context.Background())
	if err != nil {
		slog.Error("Reaper sweep aborted", "root", r.Root, "removed", n, "error", err)
		return
	}
	slog.Info("Reaper sweep finished", "root", r.Root, "removed", n, "duration", time.Since(start))
}

// Schedule sweeps once right away and then every interval. Overlapping
// sweeps are skipped. Stop the returned cron to end the schedule.
func (r *Reaper) Schedule(interval time.Duration) (*cron.Cron, error) {
	cl := &logger.CronLogger{Logger: slog.Default()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)

	id, err := c.AddFunc("@every "+interval.String(), r.run)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reaper: %w", err)
	}

	// Through the job wrapper so the first sweep is also skipped when
	// a scheduled one is still running.
	go c.Entry(id).WrappedJob.Run()
	c.Start()
	slog.Info("Reaper scheduled", "root", r.Root, "max_age", r.MaxAge, "interval", interval)
	return c, nil
}
