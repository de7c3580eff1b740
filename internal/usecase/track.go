package usecase

import (
	"context"
	"errors"
	"fmt"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
)

// Tracker counts terminal outcomes per batch and publishes completion exactly once.
// Updates to one batch are serialized by an in-process lock and by Store.UpdateBatch
// across processes; different batches proceed in parallel.
type Tracker struct {
	Store     ports.Store
	Publisher Publisher
	Retry     Retrier
	Now       func() time.Time

	locks keyedMutex
}

func (tr *Tracker) now() time.Time {
	if tr.Now != nil {
		return tr.Now()
	}
	return time.Now()
}

// Started marks a pending batch as processing.
func (tr *Tracker) Started(ctx context.Context, batchID string) error {
	unlock := tr.locks.Lock(batchID)
	defer unlock()

	return tr.Retry.Do(ctx, "start_batch", func() error {
		_, err := tr.Store.UpdateBatch(ctx, batchID, func(b *domain.Batch) error {
			if !b.Start(tr.now()) {
				return domain.ErrNoChange
			}
			return nil
		})
		return err
	})
}

// Report records the terminal outcome of taskID in batchID. Reporting the same task
// again is a no-op, so a write retried after an ambiguous failure counts once. The
// returned bool is true for the call that published the batch completion.
func (tr *Tracker) Report(ctx context.Context, batchID, taskID string, ok bool) (domain.Batch, bool, error) {
	unlock := tr.locks.Lock(batchID)
	defer unlock()

	var batch domain.Batch
	err := tr.Retry.Do(ctx, "report_outcome", func() error {
		var err error
		batch, err = tr.Store.UpdateBatch(ctx, batchID, func(b *domain.Batch) error {
			_, err := b.Record(taskID, ok, tr.now())
			return err
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrBatchOverflow) {
			log.Ctx(ctx).Error().Err(err).Str("batch_id", batchID).Str("task_id", taskID).Msg("dropping outcome report beyond batch total")
		}
		return domain.Batch{}, false, fmt.Errorf("report outcome for batch %s: %w", batchID, err)
	}

	if !batch.PendingPublication(taskID) {
		return batch, false, nil
	}
	tr.Publisher.Publish(ctx, batch)
	if err := tr.markPublished(ctx, batchID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("batch_id", batchID).Msg("could not record batch publication")
	} else {
		batch.Published = true
	}
	return batch, true, nil
}

func (tr *Tracker) markPublished(ctx context.Context, batchID string) error {
	return tr.Retry.Do(ctx, "mark_published", func() error {
		_, err := tr.Store.UpdateBatch(ctx, batchID, func(b *domain.Batch) error {
			if b.Published {
				return domain.ErrNoChange
			}
			b.Published = true
			return nil
		})
		return err
	})
}
