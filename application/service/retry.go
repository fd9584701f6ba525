package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/metrics"
)

// RetryPolicy bounds the exponential backoff around persistence.
type RetryPolicy struct {
	MaxRetries   uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// retryPersistence runs op until it succeeds or the policy is exhausted.
// Exhaustion is reported as ErrPersistenceUnavailable.
func retryPersistence[T any](
	ctx context.Context,
	policy RetryPolicy,
	m *metrics.Metrics,
	logger *slog.Logger,
	op func() (T, error),
) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialDelay
	expo.MaxInterval = policy.MaxDelay

	result, err := backoff.Retry(ctx, backoff.Operation[T](op),
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(policy.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.PersistenceRetry()
			logger.WarnContext(ctx, "persistence failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", next),
			)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("%w: %w", branch.ErrPersistenceUnavailable, err)
	}
	return result, nil
}
