package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/logger"

	"github.com/cenkalti/backoff/v4"
)

// Func is an operation that may be attempted more than once.
type Func func(ctx context.Context) error

// Config holds retry configuration.
type Config struct {
	MaxRetries int           // attempts after the first one
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	Retryable  func(error) bool
}

// ReadConfig retries only Unavailable failures, the policy applied to store reads.
func ReadConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     true,
		Retryable: func(err error) bool {
			return apperr.Is(err, apperr.KindUnavailable)
		},
	}
}

// Retrier runs a Func with exponential backoff.
type Retrier struct {
	config Config
	log    *logger.Logger
}

// New creates a Retrier. log may be nil.
func New(config Config, log *logger.Logger) *Retrier {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Retryable == nil {
		config.Retryable = func(error) bool { return true }
	}
	return &Retrier{config: config, log: log}
}

func (r *Retrier) policy(ctx context.Context) backoff.BackOff {
	maxInterval := r.config.MaxDelay
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	var randomization float64
	if r.config.Jitter {
		randomization = 0.1
	}
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     r.config.BaseDelay,
		RandomizationFactor: randomization,
		Multiplier:          r.config.Multiplier,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0, // bounded by MaxRetries instead
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.config.MaxRetries)), ctx)
}

// Do executes fn until it succeeds, returns a non-retryable error, or the attempts run out.
func (r *Retrier) Do(ctx context.Context, action string, fn Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		attempts int
		lastErr  error
	)
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.config.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		if r.log != nil {
			r.log.Debug(ctx, action, "retrying after failure", map[string]any{
				"attempt": attempts,
				"delay":   delay.String(),
				"error":   err.Error(),
			})
		}
	}

	err := backoff.RetryNotify(operation, r.policy(ctx), notify)
	switch {
	case err == nil:
		if attempts > 1 && r.log != nil {
			r.log.Debug(ctx, action, "succeeded after retries", map[string]any{"attempts": attempts})
		}
		return nil
	case lastErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && !errors.Is(lastErr, err):
		// cancelled while waiting: report the operation's own failure
		return lastErr
	case attempts > 1 && r.config.Retryable(err):
		return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
	default:
		return err
	}
}

// Value runs fn through r and returns its result.
func Value[T any](ctx context.Context, r *Retrier, action string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, action, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
