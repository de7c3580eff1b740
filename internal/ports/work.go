package ports

import (
	"context"
	"thumbq/internal/domain"
)

// WorkUnit performs the actual work for a task. Failures are reported in the Result.
type WorkUnit interface {
	Do(ctx context.Context, t domain.Task) domain.Result
}

type WorkFunc func(ctx context.Context, t domain.Task) domain.Result

func (f WorkFunc) Do(ctx context.Context, t domain.Task) domain.Result { return f(ctx, t) }
