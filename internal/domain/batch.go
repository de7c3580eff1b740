package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

type Batch struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	// Priority is captured at submission and never changes afterwards.
	Priority       Priority    `json:"priority"`
	TotalTasks     int         `json:"total_tasks"`
	SucceededCount int         `json:"succeeded_count"`
	FailedCount    int         `json:"failed_count"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`

	// Counted lists the tasks whose outcome is already in the counters.
	Counted []string `json:"-"`
	// CompletedBy is the task whose outcome completed the batch.
	CompletedBy string `json:"-"`
	// Published is set once the completion event has been handed to the notifier.
	Published bool `json:"-"`
}

func (b Batch) Done() int { return b.SucceededCount + b.FailedCount }

func (b Batch) Outstanding() int { return b.TotalTasks - b.Done() }

// SuccessRate is succeeded/total as a percentage rounded to one decimal, 0 for an empty batch.
func (b Batch) SuccessRate() float64 {
	return SuccessRate(b.SucceededCount, b.TotalTasks)
}

func SuccessRate(succeeded, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(succeeded) / float64(total) * 100
	return math.Round(rate*10) / 10
}

// Record counts the terminal outcome of taskID. It returns true when this call
// completed the batch, and ErrNoChange when taskID was counted before.
func (b *Batch) Record(taskID string, ok bool, now time.Time) (bool, error) {
	if slices.Contains(b.Counted, taskID) {
		return false, ErrNoChange
	}
	if b.Status == BatchCompleted || b.Done() >= b.TotalTasks {
		return false, fmt.Errorf("batch %s: %w", b.ID, ErrBatchOverflow)
	}
	b.Counted = append(b.Counted, taskID)
	if ok {
		b.SucceededCount++
	} else {
		b.FailedCount++
	}
	if b.Status == BatchPending {
		b.Status = BatchProcessing
		b.StartedAt = &now
	}
	if b.Done() == b.TotalTasks {
		b.Status = BatchCompleted
		b.CompletedAt = &now
		b.CompletedBy = taskID
		return true, nil
	}
	return false, nil
}

// PendingPublication reports whether taskID completed the batch and the
// completion event still has to go out.
func (b Batch) PendingPublication(taskID string) bool {
	return b.Status == BatchCompleted && b.CompletedBy == taskID && !b.Published
}

// Start moves a pending batch to processing. It reports whether anything changed.
func (b *Batch) Start(now time.Time) bool {
	if b.Status != BatchPending {
		return false
	}
	b.Status = BatchProcessing
	b.StartedAt = &now
	return true
}

// BatchCompletion is the event emitted once a batch completes.
type BatchCompletion struct {
	BatchID     string    `json:"batch_id"`
	OwnerID     string    `json:"owner_id"`
	Priority    Priority  `json:"priority"`
	Total       int       `json:"total_images"`
	Succeeded   int       `json:"processed_images"`
	Failed      int       `json:"failed_images"`
	SuccessRate float64   `json:"success_rate"`
	Subject     string    `json:"subject"`
	CompletedAt time.Time `json:"completed_at"`
}

func CompletionFor(b Batch) BatchCompletion {
	ev := BatchCompletion{
		BatchID:     b.ID,
		OwnerID:     b.OwnerID,
		Priority:    b.Priority,
		Total:       b.TotalTasks,
		Succeeded:   b.SucceededCount,
		Failed:      b.FailedCount,
		SuccessRate: b.SuccessRate(),
	}
	if b.CompletedAt != nil {
		ev.CompletedAt = *b.CompletedAt
	}
	if b.FailedCount == 0 {
		ev.Subject = fmt.Sprintf("All %d thumbnails are ready!", b.TotalTasks)
	} else {
		ev.Subject = fmt.Sprintf("Bulk request completed with %.1f%% success rate", ev.SuccessRate)
	}
	return ev
}
