package domain

// Result is what a unit of work produces. Exactly one of Artifact and Reason is meaningful.
type Result struct {
	OK       bool
	Artifact string
	Reason   string
}

func Success(artifact string) Result { return Result{OK: true, Artifact: artifact} }

func Failure(reason string) Result { return Result{Reason: reason} }

// TaskOutcome is the per-task notification payload.
type TaskOutcome struct {
	TaskID   string     `json:"task_id"`
	BatchID  string     `json:"batch_id"`
	OwnerID  string     `json:"owner_id"`
	Payload  string     `json:"image_url"`
	Status   TaskStatus `json:"status"`
	Result   string     `json:"result,omitempty"`
	Priority Priority   `json:"priority"`
}

func OutcomeFor(t Task) TaskOutcome {
	return TaskOutcome{
		TaskID:   t.ID,
		BatchID:  t.BatchID,
		OwnerID:  t.OwnerID,
		Payload:  t.Payload,
		Status:   t.Status,
		Result:   t.Result,
		Priority: t.Priority,
	}
}
