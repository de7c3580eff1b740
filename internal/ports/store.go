package ports

import (
	"context"
	"thumbq/internal/domain"
)

type Store interface {
	CreateBatch(ctx context.Context, b domain.Batch, tasks []domain.Task) error
	LoadTask(ctx context.Context, id string) (domain.Task, error)
	SaveTask(ctx context.Context, t domain.Task) error
	ListTasks(ctx context.Context, batchID string) ([]domain.Task, error)
	LoadBatch(ctx context.Context, id string) (domain.Batch, error)
	SaveBatch(ctx context.Context, b domain.Batch) error
	// UpdateBatch runs fn on the current batch and persists the result atomically with
	// respect to other UpdateBatch calls on the same id. Returning domain.ErrNoChange
	// from fn skips the write.
	UpdateBatch(ctx context.Context, id string, fn func(b *domain.Batch) error) (domain.Batch, error)
}
