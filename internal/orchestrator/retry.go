package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is an exponential backoff with no jitter, so successive delays
// never decrease.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Notify, when set, is called before each wait with the failure and the
	// delay about to be slept.
	Notify func(err error, delay time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 2 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do calls op until it succeeds, the attempts are spent or ctx is done.
// Context errors are not retried.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		metricLLMRetries.Inc()
		if p.Notify != nil {
			p.Notify(err, d)
		}
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
