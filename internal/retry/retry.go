// Package retry runs operations again after transient failures, with
// exponential backoff and an escape hatch for errors that must not be
// retried.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config controls how many attempts are made and how long to wait
// between them.
type Config struct {
	// MaxAttempts counts the first try too.
	MaxAttempts int
	// InitialDelay is the pause after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Factor multiplies the delay after each failure.
	Factor float64
	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool
}

// DefaultConfig is a sane default for vendor HTTP calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Result reports what happened across all attempts.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// Do runs op until it succeeds, the attempts run out, the error is
// permanent, or the context is canceled.
func Do(ctx context.Context, cfg Config, op func() error) Result {
	start := time.Now()
	res := Result{}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Factor <= 0 {
		cfg.Factor = 2.0
	}

	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if ctx.Err() != nil {
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		}

		err := op()
		if err == nil {
			res.Err = nil
			res.Duration = time.Since(start)
			return res
		}
		res.Err = err

		if IsPermanent(err) {
			res.Duration = time.Since(start)
			return res
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter {
			// delay * [0.5, 1.5)
			sleep = time.Duration(float64(delay) * (0.5 + rand.Float64())) // #nosec G404 -- jitter needs no crypto randomness
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	res.Duration = time.Since(start)
	return res
}

// DoWithValue is Do for operations that produce a value.
func DoWithValue[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, Result) {
	var value T
	res := Do(ctx, cfg, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, res
}

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
