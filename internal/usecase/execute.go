package usecase

import (
	"context"
	"errors"
	"fmt"
	"thumbq/internal/domain"
	"thumbq/internal/metrics"
	"thumbq/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTaskTimeout = 5 * time.Minute

// Executor runs a single task from Processing to a terminal status.
type Executor struct {
	Store    ports.Store
	Work     ports.WorkUnit
	Tracker  *Tracker
	Notifier ports.Notifier
	Metrics  metrics.Recorder
	Retry    Retrier
	Timeout  time.Duration
	// NotifyTimeout bounds the per-task notification.
	NotifyTimeout time.Duration
	Now           func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) recorder() metrics.Recorder {
	if e.Metrics == nil {
		return metrics.Noop{}
	}
	return e.Metrics
}

// Execute processes the task referenced by item and returns its final state. The
// error is set when the task is unknown or its outcome could not be counted.
func (e *Executor) Execute(ctx context.Context, item domain.QueueItem) (domain.Task, error) {
	logger := log.Ctx(ctx).With().
		Str("task_id", item.TaskID).
		Str("batch_id", item.BatchID).
		Int("priority", int(item.Priority)).
		Logger()
	ctx = logger.WithContext(ctx)

	var t domain.Task
	err := e.Retry.Do(ctx, "load_task", func() error {
		var err error
		t, err = e.Store.LoadTask(ctx, item.TaskID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		logger.Error().Err(err).Msg("dequeued unknown task")
		return domain.Task{}, err
	}
	if err != nil {
		// the stored record is unreachable, so only the outcome is accounted for
		t = domain.Task{ID: item.TaskID, BatchID: item.BatchID, Priority: item.Priority}
		if b, berr := e.Store.LoadBatch(ctx, item.BatchID); berr == nil {
			t.OwnerID = b.OwnerID
		}
		t.Finish(infraFailure("loading task", err), e.now())
		return e.account(ctx, t, time.Time{})
	}

	if t.Status.Terminal() {
		logger.Warn().Str("status", string(t.Status)).Msg("task already finished; skipping")
		return t, nil
	}

	t.Status = domain.StatusProcessing
	t.Attempts++
	if err := e.Retry.Do(ctx, "save_task", func() error { return e.Store.SaveTask(ctx, t) }); err != nil {
		return e.finish(ctx, t, infraFailure("marking task processing", err), time.Time{})
	}
	if err := e.Tracker.Started(ctx, t.BatchID); err != nil {
		logger.Warn().Err(err).Msg("could not mark batch processing")
	}

	started := e.now()
	res := e.run(ctx, t)
	return e.finish(ctx, t, res, started)
}

// run performs the work unit under the task timeout. A work unit that ignores its
// context is abandoned once the timeout fires; its result is discarded.
func (e *Executor) run(ctx context.Context, t domain.Task) domain.Result {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	workCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan domain.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Ctx(ctx).Error().Interface("panic", r).Msg("work unit panicked")
				done <- domain.Failure(fmt.Sprintf("unexpected error: %v", r))
			}
		}()
		done <- e.Work.Do(workCtx, t)
	}()

	select {
	case res := <-done:
		if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
			return domain.Failure(fmt.Sprintf("timed out after %s", timeout))
		}
		return res
	case <-workCtx.Done():
		if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
			return domain.Failure(fmt.Sprintf("timed out after %s", timeout))
		}
		return domain.Failure(fmt.Sprintf("processing interrupted: %v", workCtx.Err()))
	}
}

func (e *Executor) finish(ctx context.Context, t domain.Task, res domain.Result, started time.Time) (domain.Task, error) {
	t.Finish(res, e.now())
	if err := e.Retry.Do(ctx, "save_task", func() error { return e.Store.SaveTask(ctx, t) }); err != nil {
		t.Finish(infraFailure("saving task result", err), e.now())
		if err := e.Store.SaveTask(ctx, t); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("could not persist task failure")
		}
	}
	return e.account(ctx, t, started)
}

// account reports a terminal task to metrics, the tracker and the notifier.
func (e *Executor) account(ctx context.Context, t domain.Task, started time.Time) (domain.Task, error) {
	logger := log.Ctx(ctx)

	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = e.now().Sub(started)
	}
	e.recorder().TaskFinished(t.Priority, t.Status, elapsed)

	ev := logger.Info()
	if t.Status == domain.StatusFailed {
		ev = logger.Warn()
	}
	ev.Str("status", string(t.Status)).Str("result", t.Result).Dur("elapsed", elapsed).Msg("task finished")

	_, _, err := e.Tracker.Report(ctx, t.BatchID, t.ID, t.Status == domain.StatusSucceeded)
	if err != nil {
		logger.Error().Err(err).Msg("failed to record task outcome")
	}

	e.notify(ctx, t)
	return t, err
}

func (e *Executor) notify(ctx context.Context, t domain.Task) {
	if e.Notifier == nil {
		return
	}
	logger := log.Ctx(ctx)
	if t.OwnerID == "" {
		logger.Warn().Msg("owner unknown; skipping task notification")
		return
	}

	nctx, cancel := notifyContext(ctx, e.NotifyTimeout)
	defer cancel()
	if err := e.Notifier.NotifyTaskOutcome(nctx, domain.OutcomeFor(t)); err != nil {
		e.recorder().NotifyFailed("task")
		logger.Error().Err(err).Msg("failed to send task notification")
	}
}

func infraFailure(op string, err error) domain.Result {
	return domain.Failure(fmt.Sprintf("infrastructure error: %s: %v", op, err))
}
