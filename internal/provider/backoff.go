package provider

import (
	"context"
	"errors"
	"time"

	"comicshelf/internal/shared"
)

// Retry states. The retrier is an explicit state machine so the policy can be
// tested with a fake clock instead of real delays.
type RetryState int

const (
	StateIdle RetryState = iota
	StateAttempting
	StateBackoff
	StateSucceeded
	StateFailed
)

// Policy is an exponential backoff policy: delay starts at BaseDelay and is
// multiplied by Factor after each failure, capped at MaxDelay, for at most
// MaxAttempts attempts.
type Policy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy matches the embedded example config.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   200 * time.Millisecond,
		Factor:      2.0,
		MaxDelay:    5 * time.Second,
		MaxAttempts: 4,
	}
}

// Delay returns the backoff delay before the given 1-based attempt's retry.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// Retryable reports whether an error is worth another attempt. Upstream
// throttling and transient unavailability are; NotFound is terminal, and a
// blown local admission deadline means the caller's budget is gone.
func Retryable(err error) bool {
	return errors.Is(err, shared.ErrRateLimited) ||
		errors.Is(err, shared.ErrUnavailable) ||
		errors.Is(err, shared.ErrTimeout)
}

// Retrier drives one operation through the retry state machine.
type Retrier struct {
	Policy Policy
	Clock  shared.Clock

	state   RetryState
	attempt int
}

// NewRetrier creates a retrier with the given policy and the real clock.
func NewRetrier(p Policy) *Retrier {
	return &Retrier{Policy: p, Clock: shared.RealClock{}}
}

// State returns the retrier's current state.
func (r *Retrier) State() RetryState { return r.state }

// Attempts returns how many attempts have been made.
func (r *Retrier) Attempts() int { return r.attempt }

// Do runs op until it succeeds, fails terminally, exhausts the attempt
// budget, or ctx is done. The last error is returned on failure.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for {
		r.attempt++
		r.state = StateAttempting

		err := op(ctx)
		if err == nil {
			r.state = StateSucceeded
			return nil
		}
		if !Retryable(err) || r.attempt >= maxAttempts {
			r.state = StateFailed
			return err
		}

		r.state = StateBackoff
		if !r.Clock.Sleep(ctx.Done(), r.Policy.Delay(r.attempt)) {
			r.state = StateFailed
			return ctx.Err()
		}
	}
}
