package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"thumbq/internal/domain"
	"thumbq/internal/infra/memstore"
	"thumbq/internal/ports"
	"thumbq/internal/queue"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	tasks    []domain.TaskOutcome
	batches  []domain.BatchCompletion
	failWith error
}

func (n *recordingNotifier) NotifyTaskOutcome(_ context.Context, ev domain.TaskOutcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, ev)
	return n.failWith
}

func (n *recordingNotifier) NotifyBatchCompletion(_ context.Context, ev domain.BatchCompletion) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, ev)
	return n.failWith
}

func (n *recordingNotifier) snapshot() ([]domain.TaskOutcome, []domain.BatchCompletion) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.TaskOutcome(nil), n.tasks...), append([]domain.BatchCompletion(nil), n.batches...)
}

// flakyStore fails SaveTask a configured number of times before delegating.
type flakyStore struct {
	ports.Store
	saveFailures atomic.Int32
}

var errStorageDown = errors.New("storage unavailable")

func (s *flakyStore) SaveTask(ctx context.Context, t domain.Task) error {
	if s.saveFailures.Add(-1) >= 0 {
		return errStorageDown
	}
	return s.Store.SaveTask(ctx, t)
}

var fastRetry = Retrier{Attempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

type harness struct {
	store    ports.Store
	queue    *queue.Memory
	notifier *recordingNotifier
	tracker  *Tracker
	exec     *Executor
	enqueuer Enqueuer
}

func newHarness(t *testing.T, store ports.Store, work ports.WorkUnit) *harness {
	t.Helper()
	if store == nil {
		store = memstore.New()
	}
	h := &harness{store: store, queue: queue.NewMemory(), notifier: &recordingNotifier{}}
	h.tracker = &Tracker{Store: store, Publisher: Publisher{Notifier: h.notifier}, Retry: fastRetry}
	h.exec = &Executor{
		Store:    store,
		Work:     work,
		Tracker:  h.tracker,
		Notifier: h.notifier,
		Retry:    fastRetry,
		Timeout:  time.Second,
	}
	h.enqueuer = Enqueuer{Q: h.queue, Store: store}
	return h
}

func (h *harness) submit(t *testing.T, prio domain.Priority, n int) (domain.Batch, []domain.Task) {
	t.Helper()
	urls := make([]string, n)
	for i := range urls {
		urls[i] = "https://example.com/img.jpg"
	}
	b, tasks, err := h.enqueuer.Submit(context.Background(), Submission{OwnerID: "owner", Priority: prio, Payloads: urls})
	require.NoError(t, err)
	return b, tasks
}

func succeed(context.Context, domain.Task) domain.Result { return domain.Success("/thumbnails/ok.jpg") }

func fail(context.Context, domain.Task) domain.Result { return domain.Failure("bad image") }
