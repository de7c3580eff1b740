package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	HeaderEvent = "event"

	EventTaskOutcome     = "task.outcome"
	EventBatchCompletion = "batch.completed"
)

// Producer defines the interface for producing messages to Kafka
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

var _ ports.Notifier = (*Notifier)(nil)

// Notifier publishes notifications keyed by owner so one owner's events stay ordered.
type Notifier struct {
	client Producer
	topic  string
}

func New(client Producer, topic string) *Notifier {
	return &Notifier{client: client, topic: topic}
}

// NewClient builds a producer whose records fail after deliveryTimeout instead of
// being retried forever while the cluster is unreachable.
func NewClient(brokers []string, topic string, deliveryTimeout time.Duration) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.DefaultProduceTopic(topic),
		kgo.RecordDeliveryTimeout(deliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (n *Notifier) NotifyTaskOutcome(ctx context.Context, ev domain.TaskOutcome) error {
	return n.publish(ctx, EventTaskOutcome, ev.OwnerID, ev)
}

func (n *Notifier) NotifyBatchCompletion(ctx context.Context, ev domain.BatchCompletion) error {
	return n.publish(ctx, EventBatchCompletion, ev.OwnerID, ev)
}

func (n *Notifier) publish(ctx context.Context, event, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	rec := &kgo.Record{
		Topic:   n.topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: HeaderEvent, Value: []byte(event)}},
	}
	if err := n.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
