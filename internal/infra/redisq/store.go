package redisq

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

var _ ports.Store = (*Store)(nil)

// Store keeps tasks and batches as hashes: <prefix>:task:<id>, <prefix>:batch:<id>,
// the task ids of a batch in the list <prefix>:batch:<id>:tasks and the ids of
// counted tasks in the set <prefix>:batch:<id>:counted.
type Store struct {
	C *Client
}

func NewStore(c *Client) *Store { return &Store{C: c} }

func (s *Store) taskKey(id string) string       { return s.C.key("task", id) }
func (s *Store) batchKey(id string) string      { return s.C.key("batch", id) }
func (s *Store) batchTasksKey(id string) string { return s.C.key("batch", id, "tasks") }
func (s *Store) countedKey(id string) string    { return s.C.key("batch", id, "counted") }

func (s *Store) CreateBatch(ctx context.Context, b domain.Batch, tasks []domain.Task) error {
	ok, err := s.C.Rdb.HSetNX(ctx, s.batchKey(b.ID), "id", b.ID).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}

	_, err = s.C.Rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.batchKey(b.ID), batchFields(b))
		ids := make([]any, 0, len(tasks))
		for _, t := range tasks {
			pipe.HSet(ctx, s.taskKey(t.ID), taskFields(t))
			ids = append(ids, t.ID)
		}
		if len(ids) > 0 {
			pipe.RPush(ctx, s.batchTasksKey(b.ID), ids...)
		}
		return nil
	})
	return err
}

func (s *Store) LoadTask(ctx context.Context, id string) (domain.Task, error) {
	h, err := s.C.Rdb.HGetAll(ctx, s.taskKey(id)).Result()
	if err != nil {
		return domain.Task{}, err
	}
	if len(h) == 0 {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return taskFromHash(id, h)
}

func (s *Store) SaveTask(ctx context.Context, t domain.Task) error {
	return s.C.Rdb.HSet(ctx, s.taskKey(t.ID), taskFields(t)).Err()
}

func (s *Store) ListTasks(ctx context.Context, batchID string) ([]domain.Task, error) {
	ids, err := s.C.Rdb.LRange(ctx, s.batchTasksKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Task{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.C.Rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.taskKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Task, 0, len(ids))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		t, err := taskFromHash(ids[i], h)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) LoadBatch(ctx context.Context, id string) (domain.Batch, error) {
	return s.readBatch(ctx, s.C.Rdb, id)
}

// batchReader is satisfied by both the client and a WATCH transaction.
type batchReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

func (s *Store) readBatch(ctx context.Context, rdb batchReader, id string) (domain.Batch, error) {
	h, err := rdb.HGetAll(ctx, s.batchKey(id)).Result()
	if err != nil {
		return domain.Batch{}, err
	}
	if len(h) == 0 {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	b, err := batchFromHash(id, h)
	if err != nil {
		return b, err
	}
	if b.Counted, err = rdb.SMembers(ctx, s.countedKey(id)).Result(); err != nil {
		return b, err
	}
	return b, nil
}

func (s *Store) SaveBatch(ctx context.Context, b domain.Batch) error {
	_, err := s.C.Rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.writeBatch(ctx, pipe, b, nil)
		return nil
	})
	return err
}

// writeBatch queues the batch fields and the counted ids not in prev.
func (s *Store) writeBatch(ctx context.Context, pipe redis.Pipeliner, b domain.Batch, prev []string) {
	pipe.HSet(ctx, s.batchKey(b.ID), batchFields(b))
	var added []any
	for _, id := range b.Counted {
		if !slices.Contains(prev, id) {
			added = append(added, id)
		}
	}
	if len(added) > 0 {
		pipe.SAdd(ctx, s.countedKey(b.ID), added...)
	}
}

// UpdateBatch is an optimistic WATCH/MULTI transaction, retried when another
// client modifies the batch in between.
func (s *Store) UpdateBatch(ctx context.Context, id string, fn func(b *domain.Batch) error) (domain.Batch, error) {
	for i := 0; i < maxTxRetries; i++ {
		var current, updated domain.Batch
		err := s.C.Rdb.Watch(ctx, func(tx *redis.Tx) error {
			var err error
			if current, err = s.readBatch(ctx, tx, id); err != nil {
				return err
			}
			updated = current
			updated.Counted = slices.Clone(current.Counted)
			if err := fn(&updated); err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.writeBatch(ctx, pipe, updated, current.Counted)
				return nil
			})
			return err
		}, s.batchKey(id), s.countedKey(id))

		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, domain.ErrNoChange):
			return current, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return domain.Batch{}, err
		}
	}
	return domain.Batch{}, fmt.Errorf("batch %s: too much contention", id)
}

func taskFields(t domain.Task) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"batch_id":     t.BatchID,
		"owner_id":     t.OwnerID,
		"payload":      t.Payload,
		"status":       string(t.Status),
		"priority":     int(t.Priority),
		"result":       t.Result,
		"attempts":     t.Attempts,
		"created_at":   t.CreatedAt.UnixMilli(),
		"completed_at": msOrZero(t.CompletedAt),
	}
}

func taskFromHash(id string, h map[string]string) (domain.Task, error) {
	t := domain.Task{
		ID:      id,
		BatchID: h["batch_id"],
		OwnerID: h["owner_id"],
		Payload: h["payload"],
		Status:  domain.TaskStatus(h["status"]),
		Result:  h["result"],
	}
	var err error
	var prio int
	if prio, err = atoi(h, "priority"); err != nil {
		return t, err
	}
	t.Priority = domain.Priority(prio)
	if t.Attempts, err = atoi(h, "attempts"); err != nil {
		return t, err
	}
	if t.CreatedAt, err = msTime(h, "created_at"); err != nil {
		return t, err
	}
	if t.CompletedAt, err = msTimePtr(h, "completed_at"); err != nil {
		return t, err
	}
	return t, nil
}

func batchFields(b domain.Batch) map[string]any {
	return map[string]any{
		"id":              b.ID,
		"owner_id":        b.OwnerID,
		"priority":        int(b.Priority),
		"total_tasks":     b.TotalTasks,
		"succeeded_count": b.SucceededCount,
		"failed_count":    b.FailedCount,
		"status":          string(b.Status),
		"created_at":      b.CreatedAt.UnixMilli(),
		"started_at":      msOrZero(b.StartedAt),
		"completed_at":    msOrZero(b.CompletedAt),
		"completed_by":    b.CompletedBy,
		"published":       strconv.FormatBool(b.Published),
	}
}

func batchFromHash(id string, h map[string]string) (domain.Batch, error) {
	b := domain.Batch{
		ID:          id,
		OwnerID:     h["owner_id"],
		Status:      domain.BatchStatus(h["status"]),
		CompletedBy: h["completed_by"],
		Published:   h["published"] == "true",
	}
	var err error
	var prio int
	if prio, err = atoi(h, "priority"); err != nil {
		return b, err
	}
	b.Priority = domain.Priority(prio)
	if b.TotalTasks, err = atoi(h, "total_tasks"); err != nil {
		return b, err
	}
	if b.SucceededCount, err = atoi(h, "succeeded_count"); err != nil {
		return b, err
	}
	if b.FailedCount, err = atoi(h, "failed_count"); err != nil {
		return b, err
	}
	if b.CreatedAt, err = msTime(h, "created_at"); err != nil {
		return b, err
	}
	if b.StartedAt, err = msTimePtr(h, "started_at"); err != nil {
		return b, err
	}
	if b.CompletedAt, err = msTimePtr(h, "completed_at"); err != nil {
		return b, err
	}
	return b, nil
}

func atoi(h map[string]string, field string) (int, error) {
	v, ok := h[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}

func msTime(h map[string]string, field string) (time.Time, error) {
	v, ok := h[field]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", field, err)
	}
	return time.UnixMilli(ms), nil
}

func msTimePtr(h map[string]string, field string) (*time.Time, error) {
	t, err := msTime(h, field)
	if err != nil || t.UnixMilli() == 0 {
		return nil, err
	}
	return &t, nil
}

func msOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
