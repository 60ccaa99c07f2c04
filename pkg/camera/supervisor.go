package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds how often a failing capture is retried.
type Policy struct {
	// MaxAttempts is the number of counted failures tolerated; one more
	// makes the session terminal.
	MaxAttempts int
	// ResetAfter clears the failure count when the attempt that just
	// failed had been running for longer than this.
	ResetAfter time.Duration
	// BackOff paces retries. backoff.Stop is treated as giving up.
	BackOff backoff.BackOff
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		ResetAfter:  2 * time.Hour,
		BackOff:     backoff.NewConstantBackOff(time.Second),
	}
}

// Clock is the time source of the supervisor.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Supervisor reruns a capture attempt until it ends normally or the policy
// gives up.
type Supervisor struct {
	Policy Policy
	Clock  Clock

	// OnFailure is called after every failed attempt with the current count.
	OnFailure func(attempts int, err error)
}

// Run calls attempt until it returns nil, ctx is done, or the failure count
// exceeds Policy.MaxAttempts. Only the last case returns an error, which
// wraps ErrTerminal and the last failure.
func (s Supervisor) Run(ctx context.Context, attempt func(ctx context.Context) error) error {
	clock := s.Clock
	if clock == nil {
		clock = SystemClock
	}
	bo := s.Policy.BackOff
	if bo == nil {
		bo = backoff.NewConstantBackOff(time.Second)
	}
	bo.Reset()

	attempts := 0
	for {
		start := clock.Now()
		err := attempt(ctx)
		if err == nil || canceled(ctx, err) {
			return nil
		}

		attempts++
		// Measured from the start of the attempt that just failed.
		if clock.Now().Sub(start) > s.Policy.ResetAfter {
			attempts = 0
			bo.Reset()
		}
		if s.OnFailure != nil {
			s.OnFailure(attempts, err)
		}
		if attempts > s.Policy.MaxAttempts {
			return fmt.Errorf("%w: %w", ErrTerminal, err)
		}

		d := bo.NextBackOff()
		if d == backoff.Stop {
			return fmt.Errorf("%w: backoff exhausted: %w", ErrTerminal, err)
		}
		if err := clock.Sleep(ctx, d); err != nil {
			return nil
		}
	}
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
