// Package retry runs an operation again with exponential backoff while it
// fails with a transient error.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/mediaconnector/errors"
)

// Policy bounds how often and how patiently an operation is retried
type Policy struct {
	MaxAttempts  int           // total attempts including the first; <= 1 disables retry
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // upper bound for a single delay
	Multiplier   float64       // growth factor between delays
	Jitter       bool          // add up to 25% random delay
}

// None runs the operation once
func None() Policy {
	return Policy{MaxAttempts: 1}
}

// Delivery suits event delivery: a few quick attempts so a worker is not
// tied up for long
func Delivery() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Validate rejects policies that cannot produce a sane backoff
func (p Policy) Validate() error {
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Multiplier < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Policy", "Validate", "negative backoff parameter")
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Policy", "Validate", "max delay below initial delay")
	}
	return nil
}

// Retryable reports whether err is worth another attempt. Only transient
// errors are; invalid input and structural errors fail the same way again.
func Retryable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.IsTransient(err)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned wrapped with the attempt
// count.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2.0
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !Retryable(err) {
			if attempt > 1 {
				return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
			}
			return err
		}

		timer := time.NewTimer(withJitter(delay, p.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, stderrors.Join(err, ctx.Err()))
		case <-timer.C:
		}

		delay = next(delay, p)
	}
}

func withJitter(d time.Duration, on bool) time.Duration {
	if !on || d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

func next(d time.Duration, p Policy) time.Duration {
	n := time.Duration(float64(d) * p.Multiplier)
	if p.MaxDelay > 0 && (n > p.MaxDelay || n < d) {
		return p.MaxDelay
	}
	return n
}
