package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/redis/go-redis/v9"
)

// prioritySpan separates priority classes in the ready ZSET score:
// score = priority*prioritySpan - seq, so ZPOPMAX yields the highest class and,
// within it, the lowest sequence number. Scores stay exact below 2^53.
const prioritySpan = 1e13

var _ ports.Queue = (*Queue)(nil)

type Queue struct {
	C *Client
	// PollInterval is how long Dequeue sleeps when the queue is empty.
	PollInterval time.Duration
}

func NewQueue(c *Client, poll time.Duration) *Queue {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Queue{C: c, PollInterval: poll}
}

func (q *Queue) readyKey() string   { return q.C.key("queue", "ready") }
func (q *Queue) delayedKey() string { return q.C.key("queue", "delayed") }
func (q *Queue) seqKey() string     { return q.C.key("queue", "seq") }

func score(p domain.Priority, seq uint64) float64 {
	return float64(p)*prioritySpan - float64(seq)
}

func (q *Queue) Enqueue(ctx context.Context, item domain.QueueItem) error {
	seq, err := q.C.Rdb.Incr(ctx, q.seqKey()).Uint64()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	item.Seq = seq
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.C.Rdb.ZAdd(ctx, q.readyKey(), redis.Z{Score: score(item.Priority, seq), Member: b}).Err()
}

func (q *Queue) EnqueueAt(ctx context.Context, item domain.QueueItem, runAt time.Time) error {
	if !runAt.After(time.Now()) {
		return q.Enqueue(ctx, item)
	}
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.C.Rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(runAt.UnixMilli()), Member: b}).Err()
}

// Dequeue pops the highest-priority item, polling while the queue is empty.
// Cancellation is only observed between pops: a pop already sent to the server
// always completes, so an item removed there is never dropped on the client.
func (q *Queue) Dequeue(ctx context.Context) (domain.QueueItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.QueueItem{}, err
		}
		res, err := q.C.Rdb.ZPopMax(context.WithoutCancel(ctx), q.readyKey(), 1).Result()
		if err != nil {
			return domain.QueueItem{}, err
		}
		if len(res) > 0 {
			return decodeItem(res[0].Member)
		}

		select {
		case <-ctx.Done():
			return domain.QueueItem{}, ctx.Err()
		case <-time.After(q.PollInterval):
		}
	}
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.C.Rdb.ZCard(ctx, q.readyKey()).Result()
	return int(n), err
}

func decodeItem(raw any) (domain.QueueItem, error) {
	var it domain.QueueItem
	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &it); err != nil {
			return it, fmt.Errorf("decode queue item: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &it); err != nil {
			return it, fmt.Errorf("decode queue item: %w", err)
		}
	default:
		return it, fmt.Errorf("unexpected queue member type: %T", v)
	}
	return it, nil
}
