package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// policyBackOff paces retries with the RetryPolicy of the last error.
type policyBackOff struct {
	last    error
	retries int
}

func (p *policyBackOff) NextBackOff() time.Duration {
	policy := RetryPolicyOf(p.last)
	if !policy.Retryable || p.retries >= policy.MaxRetries {
		return backoff.Stop
	}
	p.retries++
	return policy.Delay
}

func (p *policyBackOff) Reset() { p.retries = 0 }

// Retry runs op until it succeeds, returns an error whose RetryPolicy says
// stop, or ctx is done. The last error is returned.
func Retry(ctx context.Context, op func(ctx context.Context) error) error {
	b := &policyBackOff{}
	return backoff.Retry(func() error {
		err := op(ctx)
		b.last = err
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
