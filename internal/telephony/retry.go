package telephony

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig tunes the exponential backoff applied to idempotent reads.
// Mutating calls (SendSMS, MakeCall, purchase/release, call control) are
// never retried: a duplicate send costs money and annoys a customer.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetry is the production retry policy for idempotent reads.
var DefaultRetry = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// retryRead runs op with exponential backoff, retrying only errors that
// IsRetryable classifies as transient. Context cancellation stops the loop.
func retryRead[T any](ctx context.Context, rc RetryConfig, op func() (T, error)) (T, error) {
	var result T

	b := backoff.NewExponentialBackOff()
	if rc.InitialInterval > 0 {
		b.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		b.MaxInterval = rc.MaxInterval
	}

	var policy backoff.BackOff = b
	if rc.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(b, rc.MaxRetries)
	}
	policy = backoff.WithContext(policy, ctx)

	err := backoff.Retry(func() error {
		var opErr error
		result, opErr = op()
		if opErr != nil && !IsRetryable(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}, policy)
	return result, err
}
