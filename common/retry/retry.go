// Package retry runs an operation again after transient failures, doubling
// the wait between attempts. It is meant for the soft paths — calls whose
// final failure degrades behaviour instead of failing the request — so the
// attempt count stays small and the caller decides what a failure means.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config bounds the retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; each later wait
	// doubles it. Zero selects 500 ms.
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts. Zero selects 10 s.
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx ends.
// The last attempt's error is returned; a cancelled context joins its error
// with the last failure so neither cause is lost.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
