package swap

import (
	"context"
	"time"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

// RetryPolicy bounds exponential backoff for quote fetches.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	return d
}

// transient reports whether a quote error is worth retrying. Typed errors
// retry only when the provider was unavailable or rate limited; untyped
// errors are treated as transport failures.
func transient(err error) bool {
	if _, ok := clierr.As(err); ok {
		return clierr.Retryable(err)
	}
	return true
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds, fails permanently or attempts run out.
func retry(ctx context.Context, p RetryPolicy, sleep sleepFunc, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || !transient(err) || ctx.Err() != nil {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if serr := sleep(ctx, p.delay(attempt)); serr != nil {
			return err
		}
	}
	return err
}
