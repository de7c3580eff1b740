// Package notify holds notifiers that need no external service.
package notify

import (
	"context"
	"errors"
	"thumbq/internal/domain"
	"thumbq/internal/ports"

	"github.com/rs/zerolog/log"
)

var (
	_ ports.Notifier = Log{}
	_ ports.Notifier = Multi(nil)
)

// Log writes notifications to the context logger.
type Log struct{}

func (Log) NotifyTaskOutcome(ctx context.Context, ev domain.TaskOutcome) error {
	log.Ctx(ctx).Info().
		Str("notification", "task").
		Str("task_id", ev.TaskID).
		Str("batch_id", ev.BatchID).
		Str("owner_id", ev.OwnerID).
		Str("status", string(ev.Status)).
		Str("result", ev.Result).
		Msg("task notification")
	return nil
}

func (Log) NotifyBatchCompletion(ctx context.Context, ev domain.BatchCompletion) error {
	log.Ctx(ctx).Info().
		Str("notification", "batch").
		Str("batch_id", ev.BatchID).
		Str("owner_id", ev.OwnerID).
		Int("total", ev.Total).
		Int("succeeded", ev.Succeeded).
		Int("failed", ev.Failed).
		Float64("success_rate", ev.SuccessRate).
		Msg(ev.Subject)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []ports.Notifier

func (m Multi) NotifyTaskOutcome(ctx context.Context, ev domain.TaskOutcome) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyTaskOutcome(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyBatchCompletion(ctx context.Context, ev domain.BatchCompletion) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyBatchCompletion(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
