// Package camera runs one capture pipeline per configured device: read,
// resize, publish to the live frame slot and, when recording, batch frames
// into chunks that are encoded in the background.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wachiwi/camwatch/pkg/device"
	"github.com/wachiwi/camwatch/pkg/frame"
	"github.com/wachiwi/camwatch/pkg/recording"
	"github.com/wachiwi/camwatch/pkg/telemetry"
	"github.com/wachiwi/camwatch/pkg/workqueue"
)

// MinFPS is the lowest reported frame rate accepted from a device.
const MinFPS = 1.0

// Options are shared by all sessions of a process.
type Options struct {
	RecordingsDir string
	Opener        device.Opener
	Codec         recording.Codec
	VideoExt      string
	Encoder       recording.Encoder

	RingDuration time.Duration
	ClipDuration time.Duration
	QueueSize    int

	Policy  Policy
	Clock   Clock
	Metrics *telemetry.Recorder
}

func (o *Options) setDefaults() {
	if o.Codec == nil {
		o.Codec = recording.BMPCodec{}
	}
	if o.VideoExt == "" {
		o.VideoExt = "mp4"
	}
	if o.Encoder == nil {
		o.Encoder = recording.FFmpeg{}
	}
	if o.RingDuration <= 0 {
		o.RingDuration = 2 * time.Second
	}
	if o.ClipDuration <= 0 {
		o.ClipDuration = 4 * time.Minute
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 32
	}
	if o.Policy.BackOff == nil && o.Policy.MaxAttempts == 0 && o.Policy.ResetAfter == 0 {
		o.Policy = DefaultPolicy()
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
}

// Status is the externally visible state of a session.
type Status struct {
	Index     int    `json:"idx"`
	Recording bool   `json:"recording"`
	Running   bool   `json:"running"`
	Errored   bool   `json:"errored"`
	Error     string `json:"error,omitempty"`
	Sequence  uint64 `json:"sequence"`
	Attempts  int    `json:"attempts"`

	// QueuedBatches are waiting to be written. StalledBatches counts batches
	// the capture loop had to wait on because the save queue was full.
	QueuedBatches  int    `json:"queued_batches"`
	StalledBatches uint64 `json:"stalled_batches"`
}

// Session owns one capture device. Only one capture loop runs per session.
type Session struct {
	Index     int
	Recording bool
	MaxWidth  int
	Slot      *frame.Slot

	opts Options

	saves     *workqueue.Pool
	finalizes *workqueue.Pool

	errored atomic.Bool

	mu       sync.Mutex
	running  bool
	lastErr  error
	attempts int
	wg       sync.WaitGroup
}

// NewSession creates a session and its background save and finalize queues.
// Each queue has a single worker so batches of one camera stay in order.
func NewSession(index int, recordingEnabled bool, maxWidth int, opts Options) *Session {
	opts.setDefaults()

	// Background work outlives shutdown of the capture loop so queued
	// batches still reach disk.
	bg := context.Background()
	return &Session{
		Index:     index,
		Recording: recordingEnabled,
		MaxWidth:  maxWidth,
		Slot:      &frame.Slot{},
		opts:      opts,
		saves:     workqueue.New(bg, fmt.Sprintf("cam-%d-save", index), opts.QueueSize, 1),
		finalizes: workqueue.New(bg, fmt.Sprintf("cam-%d-finalize", index), opts.QueueSize, 1),
	}
}

// Errored reports whether the session gave up after repeated failures.
func (s *Session) Errored() bool {
	return s.errored.Load()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	saves := s.saves.Stats()
	st := Status{
		Index:          s.Index,
		Recording:      s.Recording,
		Running:        s.running,
		Errored:        s.errored.Load(),
		Sequence:       s.Slot.Seq(),
		Attempts:       s.attempts,
		QueuedBatches:  saves.Queued,
		StalledBatches: saves.Waited,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// Run supervises capture attempts until ctx is done or retries run out. In
// the latter case the session is marked as errored.
func (s *Session) Run(ctx context.Context) error {
	if !s.claim() {
		return ErrRunning
	}
	return s.run(ctx)
}

// claim takes device ownership for one run.
func (s *Session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Session) run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log := slog.With("camera", s.Index)
	sup := Supervisor{
		Policy: s.opts.Policy,
		Clock:  s.opts.Clock,
		OnFailure: func(attempts int, err error) {
			log.Warn("Capture attempt failed", "failures", attempts, "error", err)
		},
	}

	err := sup.Run(ctx, s.attempt)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.errored.Store(true)
		log.Error("Camera failed permanently", "error", err)
		return err
	}
	log.Info("Camera session ended")
	return nil
}

func (s *Session) attempt(ctx context.Context) error {
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.mu.Unlock()

	err := s.capture(ctx)
	if err == nil || canceled(ctx, err) {
		return err
	}

	s.opts.Metrics.AttemptFailed(ctx, s.Index)
	err = &AttemptError{Device: s.Index, Attempt: n, Err: err}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Start runs the session in the background.
func (s *Session) Start(ctx context.Context) error {
	if !s.claim() {
		return ErrRunning
	}
	s.spawn(ctx)
	return nil
}

func (s *Session) spawn(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(ctx)
	}()
}

// Restart clears the failed state of a session and starts it again. It is
// the only way out of the failed state.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	if !s.errored.Load() {
		s.mu.Unlock()
		return ErrNotErrored
	}
	s.errored.Store(false)
	s.lastErr = nil
	s.running = true
	s.mu.Unlock()

	slog.Info("Restarting camera", "camera", s.Index)
	s.spawn(ctx)
	return nil
}

// Close waits for the background run to return, which requires its context
// to be done, then drains the save and finalize queues.
func (s *Session) Close() {
	s.wg.Wait()
	s.saves.Close()
	s.finalizes.Close()
}
