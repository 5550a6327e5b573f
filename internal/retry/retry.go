// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry runs an operation a bounded number of times with a fixed
// wait between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted marks an operation that kept failing with retryable errors
// until the attempt bound was reached. The last error is wrapped alongside it.
var ErrExhausted = errors.New("exhausted retries")

// Policy bounds an operation's attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first included.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempt bound is reached. It returns the number of attempts made.
//
// A non-retryable error is returned as-is. When the bound is reached the
// returned error wraps both ErrExhausted and the last error. If ctx is done
// while waiting between attempts, ctx.Err() is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) {
			return attempt, err
		}
		if attempt >= maxAttempts {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}
		if err := Sleep(ctx, p.Delay); err != nil {
			return attempt, err
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
