// Package memstore keeps tasks and batches in process memory.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	tasks   map[string]domain.Task
	batches map[string]domain.Batch
	byBatch map[string][]string
}

func New() *Store {
	return &Store{
		tasks:   make(map[string]domain.Task),
		batches: make(map[string]domain.Batch),
		byBatch: make(map[string][]string),
	}
}

func (s *Store) CreateBatch(_ context.Context, b domain.Batch, tasks []domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	s.batches[b.ID] = b
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		s.tasks[t.ID] = t
		ids = append(ids, t.ID)
	}
	s.byBatch[b.ID] = ids
	return nil
}

func (s *Store) LoadTask(_ context.Context, id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (s *Store) SaveTask(_ context.Context, t domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		s.byBatch[t.BatchID] = append(s.byBatch[t.BatchID], t.ID)
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) ListTasks(_ context.Context, batchID string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byBatch[batchID]
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tasks[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) LoadBatch(_ context.Context, id string) (domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	b.Counted = slices.Clone(b.Counted)
	return b, nil
}

func (s *Store) SaveBatch(_ context.Context, b domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
	return nil
}

func (s *Store) UpdateBatch(_ context.Context, id string, fn func(b *domain.Batch) error) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	// fn may append to Counted; the stored copy must not share its array
	b.Counted = slices.Clone(b.Counted)
	if err := fn(&b); err != nil {
		if errors.Is(err, domain.ErrNoChange) {
			current := s.batches[id]
			current.Counted = slices.Clone(current.Counted)
			return current, nil
		}
		return domain.Batch{}, err
	}
	s.batches[id] = b
	return b, nil
}
