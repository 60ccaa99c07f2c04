package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func newSupervisor(clock *fakeClock) Supervisor {
	return Supervisor{
		Policy: Policy{MaxAttempts: 3, ResetAfter: 2 * time.Hour, BackOff: backoff.NewConstantBackOff(time.Second)},
		Clock:  clock,
	}
}

func TestSupervisorGivesUpAfterFourthFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sup := newSupervisor(clock)

	cause := errors.New("device gone")
	calls := 0
	err := sup.Run(context.Background(), func(context.Context) error {
		calls++
		clock.now = clock.now.Add(time.Minute)
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clock.sleeps)
}

func TestSupervisorResetsAfterLongRunningAttempt(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sup := newSupervisor(clock)

	var counts []int
	sup.OnFailure = func(attempts int, err error) { counts = append(counts, attempts) }

	calls := 0
	err := sup.Run(context.Background(), func(context.Context) error {
		calls++
		switch calls {
		case 4:
			// Runs for three hours before failing.
			clock.now = clock.now.Add(3 * time.Hour)
		case 6:
			return nil
		}
		return errors.New("read failed")
	})

	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	assert.Equal(t, []int{1, 2, 3, 0, 1}, counts)
}

func TestSupervisorEndsOnCancel(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	sup := newSupervisor(clock)

	ctx, cancel := context.WithCancel(context.Background())
	err := sup.Run(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestSupervisorBackOffStop(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	sup := newSupervisor(clock)
	sup.Policy.BackOff = &backoff.StopBackOff{}

	calls := 0
	err := sup.Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("nope")
	})
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, 1, calls)
}

func TestClipFramesIsMultipleOfRing(t *testing.T) {
	ring := RingLength(10, 2*time.Second)
	assert.Equal(t, 20, ring)
	assert.Equal(t, 2400, ClipFrames(ring, 2*time.Second, 4*time.Minute))

	ring = RingLength(29.97, 2*time.Second)
	assert.Equal(t, 60, ring)
	assert.Zero(t, ClipFrames(ring, 2*time.Second, 4*time.Minute)%ring)
	// Whole cycles, not round(29.97 * 240) = 7193.
	assert.Equal(t, 7200, ClipFrames(ring, 2*time.Second, 4*time.Minute))

	assert.Equal(t, 1, RingLength(0.2, 2*time.Second))
}
