package domain

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusSucceeded  TaskStatus = "succeeded"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type Task struct {
	ID       string     `json:"id"`
	BatchID  string     `json:"batch_id"`
	OwnerID  string     `json:"owner_id"`
	Payload  string     `json:"payload"`
	Status   TaskStatus `json:"status"`
	Priority Priority   `json:"priority"`
	// Result holds the artifact reference on success and the error detail on failure.
	Result      string     `json:"result,omitempty"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finish moves the task into the terminal state described by res.
func (t *Task) Finish(res Result, now time.Time) {
	if res.OK {
		t.Status = StatusSucceeded
		t.Result = res.Artifact
	} else {
		t.Status = StatusFailed
		t.Result = res.Reason
	}
	t.CompletedAt = &now
}

// QueueItem is what travels through a queue: enough to order and locate a task.
type QueueItem struct {
	TaskID   string   `json:"task_id"`
	BatchID  string   `json:"batch_id"`
	Priority Priority `json:"priority"`
	Seq      uint64   `json:"seq"`
}

func ItemFor(t Task) QueueItem {
	return QueueItem{TaskID: t.ID, BatchID: t.BatchID, Priority: t.Priority}
}
