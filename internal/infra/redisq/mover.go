package redisq

import (
	"context"
	"strconv"
	"thumbq/internal/ports"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ ports.Mover = (*Mover)(nil)

// Mover releases delayed items into the ready queue once they are due.
type Mover struct {
	Q        *Queue
	Interval time.Duration
}

func NewMover(q *Queue, interval time.Duration) *Mover {
	if interval <= 0 {
		interval = time.Second
	}
	return &Mover{Q: q, Interval: interval}
}

func (m *Mover) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		if _, err := m.moveDue(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).Error().Err(err).Msg("moving delayed tasks failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Mover) moveDue(ctx context.Context) (int, error) {
	c := m.Q.C
	members, err := c.Rdb.ZRangeByScore(ctx, m.Q.delayedKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmtFloat(nowMs()),
		Offset: 0,
		Count:  128,
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, member := range members {
		// whoever removes the member owns it
		n, err := c.Rdb.ZRem(ctx, m.Q.delayedKey(), member).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		item, err := decodeItem(member)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("dropping undecodable delayed item")
			continue
		}
		if err := m.Q.Enqueue(ctx, item); err != nil {
			// put it back so a later pass retries
			_ = c.Rdb.ZAdd(ctx, m.Q.delayedKey(), redis.Z{Score: nowMs(), Member: member}).Err()
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
