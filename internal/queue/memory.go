// Package queue provides the in-process priority queue used when workers and
// submitters share one process.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"
)

var _ ports.Queue = (*Memory)(nil)

type Memory struct {
	mu     sync.Mutex
	items  itemHeap
	seq    uint64
	closed bool
	// ready holds at most one wakeup; a woken consumer passes it on while items remain.
	ready  chan struct{}
	timers map[*time.Timer]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		ready:  make(chan struct{}, 1),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *Memory) Enqueue(_ context.Context, item domain.QueueItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	q.seq++
	item.Seq = q.seq
	heap.Push(&q.items, item)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *Memory) EnqueueAt(ctx context.Context, item domain.QueueItem, runAt time.Time) error {
	delay := time.Until(runAt)
	if delay <= 0 {
		return q.Enqueue(ctx, item)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		_ = q.Enqueue(context.Background(), item)
	})
	q.timers[t] = struct{}{}
	return nil
}

func (q *Memory) Dequeue(ctx context.Context) (domain.QueueItem, error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(domain.QueueItem)
			more := q.items.Len() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return domain.QueueItem{}, domain.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return domain.QueueItem{}, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *Memory) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len(), nil
}

// Close rejects further enqueues and drops pending delayed items. Items already
// queued can still be dequeued; once drained Dequeue returns domain.ErrQueueClosed.
func (q *Memory) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	clear(q.timers)
	q.mu.Unlock()

	close(q.ready)
}

func (q *Memory) signal() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
