package metrics

import (
	"thumbq/internal/domain"
	"time"
)

type Recorder interface {
	TaskEnqueued(p domain.Priority)
	TaskFinished(p domain.Priority, status domain.TaskStatus, d time.Duration)
	BatchCompleted(p domain.Priority)
	InfraRetry(op string)
	NotifyFailed(kind string)
}

var (
	_ Recorder = (*PromMetrics)(nil)
	_ Recorder = Noop{}
)

type Noop struct{}

func (Noop) TaskEnqueued(domain.Priority)                                   {}
func (Noop) TaskFinished(domain.Priority, domain.TaskStatus, time.Duration) {}
func (Noop) BatchCompleted(domain.Priority)                                 {}
func (Noop) InfraRetry(string)                                              {}
func (Noop) NotifyFailed(string)                                            {}
