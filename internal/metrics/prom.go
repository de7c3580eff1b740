package metrics

import (
	"strconv"
	"thumbq/internal/domain"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PromMetrics struct {
	enqueued       *prometheus.CounterVec
	finished       *prometheus.CounterVec
	batchCompleted *prometheus.CounterVec
	infraRetries   *prometheus.CounterVec
	notifyFailed   *prometheus.CounterVec
	taskLatency    *prometheus.HistogramVec
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbq_tasks_enqueued_total",
			Help: "Number of tasks enqueued",
		}, []string{"priority"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbq_tasks_finished_total",
			Help: "Number of tasks reaching a terminal status",
		}, []string{"priority", "status"}),
		batchCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbq_batches_completed_total",
			Help: "Number of completed batches",
		}, []string{"priority"}),
		infraRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbq_infra_retries_total",
			Help: "Number of retried storage operations",
		}, []string{"op"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbq_notifications_failed_total",
			Help: "Number of notifications that could not be delivered",
		}, []string{"kind"}),
		taskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbq_task_duration_seconds",
			Help:    "Time spent executing a task",
			Buckets: prometheus.DefBuckets,
		}, []string{"priority"}),
	}
	reg.MustRegister(m.enqueued, m.finished, m.batchCompleted, m.infraRetries, m.notifyFailed, m.taskLatency)
	return m
}

func label(p domain.Priority) string { return strconv.Itoa(int(p)) }

func (m *PromMetrics) TaskEnqueued(p domain.Priority) {
	m.enqueued.WithLabelValues(label(p)).Inc()
}

func (m *PromMetrics) TaskFinished(p domain.Priority, status domain.TaskStatus, d time.Duration) {
	m.finished.WithLabelValues(label(p), string(status)).Inc()
	m.taskLatency.WithLabelValues(label(p)).Observe(d.Seconds())
}

func (m *PromMetrics) BatchCompleted(p domain.Priority) {
	m.batchCompleted.WithLabelValues(label(p)).Inc()
}

func (m *PromMetrics) InfraRetry(op string) {
	m.infraRetries.WithLabelValues(op).Inc()
}

func (m *PromMetrics) NotifyFailed(kind string) {
	m.notifyFailed.WithLabelValues(kind).Inc()
}
