package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"thumbq/internal/domain"
	"thumbq/internal/metrics"
	"thumbq/internal/ports"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Submission is a bulk request as accepted from the submission layer. Priority,
// when set, wins over Tier.
type Submission struct {
	OwnerID  string          `json:"owner_id"`
	Tier     string          `json:"tier"`
	Priority domain.Priority `json:"priority"`
	Payloads []string        `json:"image_urls"`
}

type Enqueuer struct {
	Q       ports.Queue
	Store   ports.Store
	Metrics metrics.Recorder
	// each task becomes visible after a random delay in [DelayMin, DelayMax]
	DelayMin time.Duration
	DelayMax time.Duration
	Float    func() float64
}

func (e Enqueuer) Now(ctx context.Context, t domain.Task) error {
	if err := e.Q.Enqueue(ctx, domain.ItemFor(t)); err != nil {
		return err
	}
	e.recorder().TaskEnqueued(t.Priority)
	return nil
}

func (e Enqueuer) At(ctx context.Context, t domain.Task, runAt time.Time) error {
	if err := e.Q.EnqueueAt(ctx, domain.ItemFor(t), runAt); err != nil {
		return err
	}
	e.recorder().TaskEnqueued(t.Priority)
	return nil
}

// Submit persists a new batch with one pending task per payload and enqueues them.
func (e Enqueuer) Submit(ctx context.Context, s Submission) (domain.Batch, []domain.Task, error) {
	prio := s.Priority
	if prio == 0 {
		prio = domain.PriorityForTier(s.Tier)
	}
	if !prio.Valid() {
		return domain.Batch{}, nil, fmt.Errorf("priority %d: %w", prio, domain.ErrInvalidPriority)
	}

	payloads := make([]string, 0, len(s.Payloads))
	for _, p := range s.Payloads {
		if p = strings.TrimSpace(p); p != "" {
			payloads = append(payloads, p)
		}
	}
	if len(payloads) == 0 {
		return domain.Batch{}, nil, domain.ErrEmptyBatch
	}

	now := time.Now()
	b := domain.Batch{
		ID:         uuid.NewString(),
		OwnerID:    s.OwnerID,
		Priority:   prio,
		TotalTasks: len(payloads),
		Status:     domain.BatchPending,
		CreatedAt:  now,
	}
	tasks := make([]domain.Task, len(payloads))
	for i, p := range payloads {
		tasks[i] = domain.Task{
			ID:        uuid.NewString(),
			BatchID:   b.ID,
			OwnerID:   s.OwnerID,
			Payload:   p,
			Status:    domain.StatusPending,
			Priority:  prio,
			CreatedAt: now,
		}
	}

	if err := e.Store.CreateBatch(ctx, b, tasks); err != nil {
		return domain.Batch{}, nil, fmt.Errorf("create batch: %w", err)
	}

	for _, t := range tasks {
		var err error
		if d := e.delay(); d > 0 {
			err = e.At(ctx, t, now.Add(d))
		} else {
			err = e.Now(ctx, t)
		}
		if err != nil {
			return b, tasks, fmt.Errorf("enqueue task %s: %w", t.ID, err)
		}
	}

	log.Ctx(ctx).Info().
		Str("batch_id", b.ID).
		Str("owner_id", b.OwnerID).
		Int("priority", int(prio)).
		Int("tasks", len(tasks)).
		Msg("batch submitted")
	return b, tasks, nil
}

func (e Enqueuer) delay() time.Duration {
	if e.DelayMax <= 0 || e.DelayMax < e.DelayMin {
		return e.DelayMin
	}
	float := e.Float
	if float == nil {
		float = rand.Float64
	}
	return e.DelayMin + time.Duration(float()*float64(e.DelayMax-e.DelayMin))
}

func (e Enqueuer) recorder() metrics.Recorder {
	if e.Metrics == nil {
		return metrics.Noop{}
	}
	return e.Metrics
}
