package usecase

import (
	"context"
	"thumbq/internal/domain"
	"thumbq/internal/metrics"
	"thumbq/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultNotifyTimeout bounds a single notification delivery.
const DefaultNotifyTimeout = 10 * time.Second

// Publisher emits the completion event of a batch. Delivery errors are logged and dropped.
type Publisher struct {
	Notifier ports.Notifier
	Metrics  metrics.Recorder
	Timeout  time.Duration
}

func (p Publisher) Publish(ctx context.Context, b domain.Batch) domain.BatchCompletion {
	ev := domain.CompletionFor(b)
	if p.Metrics != nil {
		p.Metrics.BatchCompleted(b.Priority)
	}

	logger := log.Ctx(ctx).With().Str("batch_id", b.ID).Logger()
	if p.Notifier == nil {
		return ev
	}
	nctx, cancel := notifyContext(ctx, p.Timeout)
	defer cancel()
	if err := p.Notifier.NotifyBatchCompletion(nctx, ev); err != nil {
		if p.Metrics != nil {
			p.Metrics.NotifyFailed("batch")
		}
		logger.Error().Err(err).Msg("failed to send batch completion notification")
		return ev
	}
	logger.Info().
		Int("total", ev.Total).
		Int("succeeded", ev.Succeeded).
		Int("failed", ev.Failed).
		Float64("success_rate", ev.SuccessRate).
		Msg("batch completed")
	return ev
}

func notifyContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
