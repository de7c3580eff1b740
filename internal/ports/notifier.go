package ports

import (
	"context"
	"thumbq/internal/domain"
)

type Notifier interface {
	NotifyTaskOutcome(ctx context.Context, ev domain.TaskOutcome) error
	NotifyBatchCompletion(ctx context.Context, ev domain.BatchCompletion) error
}
