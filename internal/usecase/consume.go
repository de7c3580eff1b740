package usecase

import (
	"context"
	"errors"
	"sync"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultWorkers = 4

// Pool runs a fixed number of workers, each dequeuing and executing one task at a time.
type Pool struct {
	Q       ports.Queue
	Exec    *Executor
	Workers int
	// ErrorBackoff is the pause after a failed dequeue.
	ErrorBackoff time.Duration
}

// Run blocks until ctx is cancelled and every in-flight task has finished.
func (p Pool) Run(ctx context.Context) error {
	n := p.Workers
	if n <= 0 {
		n = DefaultWorkers
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger := log.Ctx(ctx).With().Int("worker", id).Logger()
			p.work(logger.WithContext(ctx))
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (p Pool) work(ctx context.Context) {
	backoff := p.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := p.Q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
				return
			}
			log.Ctx(ctx).Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		// shutdown must not interrupt a task that already started
		_, _ = p.Exec.Execute(context.WithoutCancel(ctx), item)
	}
}
