package memstore

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

func seed(t *testing.T, s *Store, total int) domain.Batch {
	t.Helper()
	now := time.Now()
	b := domain.Batch{ID: "b1", OwnerID: "u1", Priority: 2, TotalTasks: total, Status: domain.BatchPending, CreatedAt: now}
	tasks := make([]domain.Task, total)
	for i := range tasks {
		tasks[i] = domain.Task{ID: string(rune('a' + i)), BatchID: b.ID, Status: domain.StatusPending, CreatedAt: now.Add(time.Duration(i))}
	}
	require.NoError(t, s.CreateBatch(context.Background(), b, tasks))
	return b
}

func TestStore_CreateAndLoad(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, 3)

	b, err := s.LoadBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, b.TotalTasks)

	tasks, err := s.ListTasks(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "a", tasks[0].ID)

	_, err = s.LoadTask(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, s.CreateBatch(ctx, b, nil))
}

func TestStore_UpdateBatchNoChange(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, 1)

	b, err := s.UpdateBatch(ctx, "b1", func(b *domain.Batch) error {
		b.SucceededCount = 99
		return domain.ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, 0, b.SucceededCount)

	stored, _ := s.LoadBatch(ctx, "b1")
	assert.Equal(t, 0, stored.SucceededCount)
}

func TestStore_UpdateBatchSerializes(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, 50)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var done bool
			_, err := s.UpdateBatch(ctx, "b1", func(b *domain.Batch) error {
				var err error
				done, err = b.Record(fmt.Sprint("t", i), i%2 == 0, time.Now())
				return err
			})
			assert.NoError(t, err)
			if done {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	b, _ := s.LoadBatch(ctx, "b1")
	assert.Equal(t, 25, b.SucceededCount)
	assert.Equal(t, 25, b.FailedCount)
	assert.Equal(t, domain.BatchCompleted, b.Status)
	assert.Equal(t, 1, completed)
	assert.Len(t, b.Counted, 50)
	assert.NotEmpty(t, b.CompletedBy)
}
