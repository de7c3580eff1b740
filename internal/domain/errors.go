package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyBatch      = errors.New("batch has no tasks")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrBatchOverflow   = errors.New("batch already has all outcomes recorded")
	ErrQueueClosed     = errors.New("queue closed")
	// ErrNoChange tells Store.UpdateBatch to skip the write.
	ErrNoChange = errors.New("no change")
)
