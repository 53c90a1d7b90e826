// Package retry runs an operation a bounded number of times with an optional
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Values below one are treated as one.
	MaxAttempts int
	// Delay is the wait after the first failure. Zero means retry at once.
	Delay time.Duration
	// MaxDelay caps the wait when Factor grows it. Zero means no cap.
	MaxDelay time.Duration
	// Factor multiplies the delay after each failure. Values below one keep
	// the delay fixed.
	Factor float64
	// OnRetry, when set, is called after a failed attempt that will be
	// retried, before waiting.
	OnRetry func(attempt int, err error)
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent, waits included.
	Duration time.Duration
}

// Fixed returns a config that waits the same delay between attempts.
func Fixed(maxAttempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Factor:      1.0,
	}
}

// Backoff returns a config whose delay grows by factor after each failure,
// capped at max when max is positive.
func Backoff(maxAttempts int, initial time.Duration, factor float64, max time.Duration) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Delay:       initial,
		MaxDelay:    max,
		Factor:      factor,
	}
}

// Do executes op until it succeeds, the context ends or MaxAttempts is
// reached. Every error is retried.
func Do(ctx context.Context, config Config, op func(attempt int) error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if result.Err == nil {
				result.Err = err
			}
			break
		}

		result.Attempts = attempt
		err := op(attempt)
		if err == nil {
			result.Err = nil
			break
		}
		result.Err = err

		if attempt >= config.MaxAttempts {
			break
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}
		if err := Sleep(ctx, config.wait(attempt)); err != nil {
			result.Err = errors.Join(result.Err, err)
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value with retries.
func DoWithValue[T any](ctx context.Context, config Config, op func(attempt int) (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func(attempt int) error {
		v, err := op(attempt)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, result
}

// wait returns the delay after the given failed attempt.
func (c Config) wait(attempt int) time.Duration {
	if c.Delay <= 0 {
		return 0
	}
	d := float64(c.Delay)
	if c.Factor > 1 {
		d *= math.Pow(c.Factor, float64(attempt-1))
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx ends. Non-positive durations return at once.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
