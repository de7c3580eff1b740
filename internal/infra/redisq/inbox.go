package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	KindThumbnailReady = "thumbnail_ready"
	KindBatchCompleted = "bulk_request_completed"
)

// Notification is one entry of an owner's inbox.
type Notification struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

var _ ports.Notifier = (*Inbox)(nil)

// Inbox stores notifications per owner in a capped list, newest first.
type Inbox struct {
	C    *Client
	Size int64
}

func NewInbox(c *Client) *Inbox {
	size := c.Cfg.InboxSize
	if size <= 0 {
		size = 100
	}
	return &Inbox{C: c, Size: size}
}

func (in *Inbox) inboxKey(owner string) string { return in.C.key("inbox", owner) }

func (in *Inbox) NotifyTaskOutcome(ctx context.Context, ev domain.TaskOutcome) error {
	msg := fmt.Sprintf("Your thumbnail for %s is ready!", ev.Payload)
	if ev.Status != domain.StatusSucceeded {
		msg = fmt.Sprintf("Thumbnail processing failed for %s", ev.Payload)
	}
	return in.push(ctx, ev.OwnerID, KindThumbnailReady, msg, ev)
}

func (in *Inbox) NotifyBatchCompletion(ctx context.Context, ev domain.BatchCompletion) error {
	msg := fmt.Sprintf("Bulk request #%s completed with %.1f%% success rate", ev.BatchID, ev.SuccessRate)
	return in.push(ctx, ev.OwnerID, KindBatchCompleted, msg, ev)
}

func (in *Inbox) push(ctx context.Context, owner, kind, msg string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   msg,
		Data:      raw,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	key := in.inboxKey(owner)
	_, err = in.C.Rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, in.Size-1)
		return nil
	})
	return err
}

// List returns up to limit notifications for owner, newest first.
func (in *Inbox) List(ctx context.Context, owner string, limit int64) ([]Notification, error) {
	if limit <= 0 || limit > in.Size {
		limit = in.Size
	}
	raws, err := in.C.Rdb.LRange(ctx, in.inboxKey(owner), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raws))
	for _, r := range raws {
		var n Notification
		if err := json.Unmarshal([]byte(r), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
