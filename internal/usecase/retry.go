package usecase

import (
	"context"
	"errors"
	"thumbq/internal/domain"
	"thumbq/internal/metrics"
	"thumbq/pkg/backoff"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

const (
	defaultAttempts    = 3
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
)

// Retrier retries storage operations. Domain errors are never retried.
type Retrier struct {
	Attempts    uint
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Metrics     metrics.Recorder
}

func (r Retrier) Do(ctx context.Context, op string, fn func() error) error {
	attempts := r.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	base, maxDelay := r.BaseBackoff, r.MaxBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxBackoff
	}
	m := r.Metrics
	if m == nil {
		m = metrics.Noop{}
	}

	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return backoff.ExponentialJitter(base, maxDelay, int(n)+1)
		}),
		retry.OnRetry(func(n uint, err error) {
			m.InfraRetry(op)
			log.Ctx(ctx).Warn().Err(err).Str("op", op).Uint("attempt", n+1).Msg("storage operation failed; backing off")
		}),
	)
}

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, domain.ErrBatchOverflow) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
