package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

// ErrProviderUnavailable is returned once every attempt at a provider call failed.
var ErrProviderUnavailable = goerr.New("language model provider unavailable")

// Policy bounds retries of provider calls.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is used for chat, importance and embedding calls.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
}

// Backoff returns min(base * 2^(n-1), max) for the n-th consecutive failure.
// n <= 0 means no failure and yields zero.
func Backoff(n int, base, maxDelay time.Duration) time.Duration {
	if n <= 0 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// jitter spreads d over [d/2, d].
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(half+1)
}

// Retry calls fn until it succeeds, the attempts run out, or ctx is done.
// The final error joins ErrProviderUnavailable with the last cause.
func Retry(ctx context.Context, policy Policy, name string, fn func(ctx context.Context) error) error {
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if i == attempts {
			break
		}

		wait := jitter(Backoff(i, policy.BaseDelay, policy.MaxDelay))
		logging.From(ctx).Warn("provider call failed, retrying",
			"call", name,
			"attempt", i,
			"wait", wait,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return goerr.Wrap(errors.Join(ErrProviderUnavailable, ctx.Err()), "provider call cancelled", goerr.V("call", name))
		case <-timer.C:
		}
	}

	return goerr.Wrap(errors.Join(ErrProviderUnavailable, lastErr), "provider call failed",
		goerr.V("call", name),
		goerr.V("attempts", attempts),
	)
}
