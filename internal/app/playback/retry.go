package playback

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
)

// Policy defines bounded exponential backoff with jitter. The same
// policy is applied to source resolution and transport reconnects.
type Policy struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Delay before the second attempt
	Multiplier  float64       // Backoff factor between attempts
	Jitter      float64       // Fraction of the delay randomized, [0, 1]
}

// DefaultPolicy is three attempts with a one second base delay,
// doubling between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		Jitter:      0.25,
	}
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is
// cancelled. The last error is returned wrapped with the attempt
// count.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.withJitter(delay)):
		case <-ctx.Done():
			return ctx.Err()
		}

		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}

	return errors.Wrapf(lastErr, "all %d attempts failed", attempts)
}

func (p Policy) withJitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := p.Jitter
	if spread > 1 {
		spread = 1
	}
	return d + time.Duration(rand.Float64()*spread*float64(d))
}
