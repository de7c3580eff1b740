package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"thumbq/internal/domain"

	"github.com/twmb/franz-go/pkg/kgo"
)

// mockClient mocks kgo.Client for testing
type mockClient struct {
	produceErr   error
	lastRecord   *kgo.Record
	produceCalls int
}

func (m *mockClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	m.produceCalls++
	if len(rs) > 0 {
		m.lastRecord = rs[0]
	}
	if m.produceErr != nil {
		return kgo.ProduceResults{{Err: m.produceErr}}
	}
	return kgo.ProduceResults{}
}

func header(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNotifyTaskOutcome(t *testing.T) {
	mock := &mockClient{}
	n := New(mock, "notifications")

	ev := domain.TaskOutcome{TaskID: "t1", BatchID: "b1", OwnerID: "u1", Status: domain.StatusSucceeded, Result: "/thumbnails/a.jpg"}
	if err := n.NotifyTaskOutcome(context.Background(), ev); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if mock.produceCalls != 1 {
		t.Fatalf("expected 1 produce call, got: %d", mock.produceCalls)
	}
	rec := mock.lastRecord
	if rec.Topic != "notifications" {
		t.Errorf("expected topic notifications, got %s", rec.Topic)
	}
	if string(rec.Key) != "u1" {
		t.Errorf("expected key u1, got %s", string(rec.Key))
	}
	if got := header(rec, HeaderEvent); got != EventTaskOutcome {
		t.Errorf("expected event header %s, got %s", EventTaskOutcome, got)
	}

	var decoded domain.TaskOutcome
	if err := json.Unmarshal(rec.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded != ev {
		t.Errorf("expected %+v, got %+v", ev, decoded)
	}
}

func TestNotifyBatchCompletion(t *testing.T) {
	mock := &mockClient{}
	n := New(mock, "notifications")

	ev := domain.BatchCompletion{BatchID: "b1", OwnerID: "u9", Total: 10, Succeeded: 8, Failed: 2, SuccessRate: 80}
	if err := n.NotifyBatchCompletion(context.Background(), ev); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	rec := mock.lastRecord
	if got := header(rec, HeaderEvent); got != EventBatchCompletion {
		t.Errorf("expected event header %s, got %s", EventBatchCompletion, got)
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded["success_rate"] != 80.0 {
		t.Errorf("expected success_rate 80, got %v", decoded["success_rate"])
	}
}

func TestNotify_ProduceError(t *testing.T) {
	mock := &mockClient{produceErr: errors.New("broker down")}
	n := New(mock, "notifications")

	err := n.NotifyTaskOutcome(context.Background(), domain.TaskOutcome{TaskID: "t1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, mock.produceErr) {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}
