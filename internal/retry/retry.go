// Package retry provides the retry policy shared by the embedding and
// storage-write paths: a capped number of attempts with exponentially
// growing delays between them.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Default returns the policy used across the ingestion pipeline:
// 3 attempts, 1s base delay, doubling.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Do runs op until it succeeds or the attempt budget is exhausted.
// The context cancels the wait between attempts.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
