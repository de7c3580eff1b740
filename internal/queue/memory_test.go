package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"thumbq/internal/domain"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, p domain.Priority) domain.QueueItem {
	return domain.QueueItem{TaskID: id, BatchID: "b", Priority: p}
}

func drain(t *testing.T, q *Memory, n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		it, err := q.Dequeue(ctx)
		require.NoError(t, err)
		ids = append(ids, it.TaskID)
	}
	return ids
}

func TestMemory_PriorityThenFIFO(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, item("free-1", 1)))
	require.NoError(t, q.Enqueue(ctx, item("pro-1", 2)))
	require.NoError(t, q.Enqueue(ctx, item("free-2", 1)))
	require.NoError(t, q.Enqueue(ctx, item("ent-1", 3)))
	require.NoError(t, q.Enqueue(ctx, item("pro-2", 2)))
	require.NoError(t, q.Enqueue(ctx, item("ent-2", 3)))

	assert.Equal(t,
		[]string{"ent-1", "ent-2", "pro-1", "pro-2", "free-1", "free-2"},
		drain(t, q, 6))
}

func TestMemory_InterleavedBatchesStarveLowerClass(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	// priority-1 batch submitted first, priority-3 batch interleaved afterwards
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(ctx, domain.QueueItem{TaskID: fmt.Sprintf("low-%d", i), BatchID: "low", Priority: 1}))
		require.NoError(t, q.Enqueue(ctx, domain.QueueItem{TaskID: fmt.Sprintf("high-%d", i), BatchID: "high", Priority: 3}))
	}

	got := drain(t, q, 8)
	assert.Equal(t, []string{"high-0", "high-1", "high-2", "high-3", "low-0", "low-1", "low-2", "low-3"}, got)
}

func TestMemory_SequenceIsMonotonic(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, item(fmt.Sprint(i), 2)))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var last uint64
	for i := 0; i < 3; i++ {
		it, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Greater(t, it.Seq, last)
		last = it.Seq
	}
}

func TestMemory_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewMemory()

	got := make(chan domain.QueueItem, 1)
	go func() {
		it, err := q.Dequeue(context.Background())
		if err == nil {
			got <- it
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue(context.Background(), item("late", 1)))

	select {
	case it := <-got:
		assert.Equal(t, "late", it.TaskID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestMemory_DequeueHonoursContext(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_ConcurrentConsumersGetEachItemOnce(t *testing.T) {
	q := NewMemory()
	const n = 500

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[it.TaskID]++
				done := len(seen) == n
				mu.Unlock()
				if done {
					cancel()
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(context.Background(), item(fmt.Sprint(i), domain.Priority(i%3+1))))
	}
	wg.Wait()

	require.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, "task %s", id)
	}
}

func TestMemory_EnqueueAt(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.EnqueueAt(ctx, item("later", 3), time.Now().Add(60*time.Millisecond)))
	require.NoError(t, q.EnqueueAt(ctx, item("now", 1), time.Now().Add(-time.Second)))

	n, _ := q.Len(ctx)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{"now", "later"}, drain(t, q, 2))
}

func TestMemory_Close(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, item("queued", 1)))
	require.NoError(t, q.EnqueueAt(ctx, item("delayed", 1), time.Now().Add(time.Hour)))

	q.Close()

	assert.ErrorIs(t, q.Enqueue(ctx, item("rejected", 1)), domain.ErrQueueClosed)

	it, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued", it.TaskID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}
