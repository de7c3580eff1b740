// Package scheduler assembles the priority queue, worker pool and batch tracker
// into one component with an explicit Start/Stop lifecycle.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"thumbq/internal/domain"
	"thumbq/internal/metrics"
	"thumbq/internal/ports"
	"thumbq/internal/usecase"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Queue    ports.Queue
	Store    ports.Store
	Work     ports.WorkUnit
	Notifier ports.Notifier
	Metrics  metrics.Recorder
	// Movers run alongside the workers, e.g. to release delayed tasks.
	Movers []ports.Mover

	Workers       int
	TaskTimeout   time.Duration
	NotifyTimeout time.Duration
	Retry         usecase.Retrier

	DispatchDelayMin time.Duration
	DispatchDelayMax time.Duration
}

type Scheduler struct {
	enqueuer usecase.Enqueuer
	tracker  *usecase.Tracker
	pool     usecase.Pool
	movers   []ports.Mover
	store    ports.Store
	queue    ports.Queue

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

var ErrRunning = errors.New("scheduler already running")

func New(o Options) *Scheduler {
	if o.Metrics == nil {
		o.Metrics = metrics.Noop{}
	}
	if o.Retry.Metrics == nil {
		o.Retry.Metrics = o.Metrics
	}

	tracker := &usecase.Tracker{
		Store:     o.Store,
		Publisher: usecase.Publisher{Notifier: o.Notifier, Metrics: o.Metrics, Timeout: o.NotifyTimeout},
		Retry:     o.Retry,
	}
	exec := &usecase.Executor{
		Store:    o.Store,
		Work:     o.Work,
		Tracker:  tracker,
		Notifier: o.Notifier,
		Metrics:  o.Metrics,
		Retry:    o.Retry,
		Timeout:  o.TaskTimeout,

		NotifyTimeout: o.NotifyTimeout,
	}
	return &Scheduler{
		enqueuer: usecase.Enqueuer{
			Q:        o.Queue,
			Store:    o.Store,
			Metrics:  o.Metrics,
			DelayMin: o.DispatchDelayMin,
			DelayMax: o.DispatchDelayMax,
		},
		tracker: tracker,
		pool:    usecase.Pool{Q: o.Queue, Exec: exec, Workers: o.Workers},
		movers:  o.Movers,
		store:   o.Store,
		queue:   o.Queue,
	}
}

// Start launches the workers and movers. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pool.Run(gctx) })
	for _, m := range s.movers {
		g.Go(func() error { return m.Run(gctx) })
	}

	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.done <- err
		close(s.done)
	}()

	log.Ctx(ctx).Info().Int("workers", s.pool.Workers).Msg("scheduler started")
	return nil
}

// Stop signals the workers and waits until in-flight tasks finish or ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case err := <-done:
		log.Ctx(ctx).Info().Msg("scheduler stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the scheduler stops on its own, e.g. when a mover fails.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	return <-done
}

func (s *Scheduler) Submit(ctx context.Context, sub usecase.Submission) (domain.Batch, []domain.Task, error) {
	return s.enqueuer.Submit(ctx, sub)
}

func (s *Scheduler) Batch(ctx context.Context, id string) (domain.Batch, error) {
	return s.store.LoadBatch(ctx, id)
}

func (s *Scheduler) Tasks(ctx context.Context, batchID string) ([]domain.Task, error) {
	return s.store.ListTasks(ctx, batchID)
}

func (s *Scheduler) Task(ctx context.Context, id string) (domain.Task, error) {
	return s.store.LoadTask(ctx, id)
}

func (s *Scheduler) QueueLen(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}
