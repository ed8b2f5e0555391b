package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config holds the configuration for retry logic
type Config struct {
	MaxRetries      int           `koanf:"max_retries"`
	BaseDelay       time.Duration `koanf:"base_delay"`
	MaxDelay        time.Duration `koanf:"max_delay"`
	BackoffMultiple float64       `koanf:"backoff_multiple"`
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// ErrorChecker reports whether err should trigger another attempt.
type ErrorChecker func(err error) bool

// RetryableFunc is one attempt. attempt starts at 0.
type RetryableFunc[T any] func(ctx context.Context, attempt int) (T, error)

type Options struct {
	Config       Config
	ErrorChecker ErrorChecker
	Logger       *zap.Logger
	Name         string
}

func (c Config) delay(attempt int) time.Duration {
	mult := c.BackoffMultiple
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(c.BaseDelay) * math.Pow(mult, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Execute runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. The last error is returned wrapped in
// ExhaustedError when every attempt failed with a retryable error.
func Execute[T any](ctx context.Context, opts Options, fn RetryableFunc[T]) (T, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxRetries := max(opts.Config.MaxRetries, 0)

	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			d := opts.Config.delay(attempt - 1)
			log.Debug("retrying",
				zap.String("call", opts.Name),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", maxRetries+1),
				zap.Duration("delay", d))

			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || opts.ErrorChecker == nil || !opts.ErrorChecker(err) {
			return zero, err
		}
		log.Warn("retryable error",
			zap.String("call", opts.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return zero, &ExhaustedError{Name: opts.Name, Attempts: maxRetries + 1, Err: lastErr}
}

// ExhaustedError is returned when all attempts failed with retryable errors.
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return "retry attempts exhausted for " + e.Name + ": " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from a spent retry budget.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
