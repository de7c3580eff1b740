package ports

import (
	"context"
	"thumbq/internal/domain"
	"time"
)

// Queue orders pending work by priority class, then by enqueue sequence.
type Queue interface {
	Enqueue(ctx context.Context, item domain.QueueItem) error
	// EnqueueAt makes the item visible to Dequeue no earlier than runAt.
	EnqueueAt(ctx context.Context, item domain.QueueItem, runAt time.Time) error
	// Dequeue blocks until an item is available or ctx is done.
	Dequeue(ctx context.Context) (domain.QueueItem, error)
	Len(ctx context.Context) (int, error)
}

type Mover interface {
	// moves due delayed items into the ready queue
	Run(ctx context.Context) error
}
