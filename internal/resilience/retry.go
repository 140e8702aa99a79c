package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy describes how a call is retried.
type Policy struct {
	// Op names the operation in retry logs.
	Op string
	// Attempts is the total number of calls including the first. Values
	// below 1 mean a single call.
	Attempts int
	// Base is the delay before the first retry; it doubles per retry.
	Base time.Duration
	// Max caps a single delay.
	Max time.Duration
	// Jitter spreads each delay by ±Jitter of its value.
	Jitter float64
	// Retryable overrides IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy retries op twice more after a transient failure.
func DefaultPolicy(op string) Policy {
	return Policy{
		Op:       op,
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Max:      10 * time.Second,
		Jitter:   0.25,
	}
}

// WithAttempts returns a copy of p making n calls at most. n < 1 keeps p's
// value.
func (p Policy) WithAttempts(n int) Policy {
	if n > 0 {
		p.Attempts = n
	}
	return p
}

// Do runs fn under p.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn until it succeeds, fails permanently, the attempts run out or
// ctx ends. The last error is returned unchanged.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	attempts := max(p.Attempts, 1)

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || attempt >= attempts || !retryable(err) {
			return zero, err
		}

		wait := p.delay(attempt)
		zap.L().Warn("resilience: retrying",
			zap.String("op", p.Op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// delay returns the pause after the given 1-based attempt.
func (p Policy) delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(max(d, 0))
}
