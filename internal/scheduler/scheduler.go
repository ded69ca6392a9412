package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ecombase/checkout/internal/redisx"
)

// Handler processes one due job. It must be idempotent: delivery is
// at-least-once and a job may fire after the work it guards has already been
// settled another way.
type Handler func(ctx context.Context, orderID int64) error

const retryDelay = 30 * time.Second

// Queue is a durable delay queue on a redis sorted set: member = order id,
// score = fire-at in unix milliseconds. Jobs survive process restarts.
type Queue struct {
	rdb *redis.Client
	key string
	now func() time.Time
	log zerolog.Logger
}

func New(rdb *redis.Client, log zerolog.Logger) *Queue {
	return &Queue{
		rdb: rdb,
		key: redisx.KeyExpiryQueue,
		now: time.Now,
		log: log.With().Str("component", "scheduler").Logger(),
	}
}

func (q *Queue) Schedule(ctx context.Context, orderID int64, delay time.Duration) error {
	fireAt := q.now().Add(delay).UnixMilli()
	return q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(fireAt),
		Member: strconv.FormatInt(orderID, 10),
	}).Err()
}

// Run polls for due jobs until ctx is cancelled. A member is claimed with ZRem
// before its handler runs, so concurrent workers never double-claim; a failed
// handler re-schedules the job with a short delay.
func (q *Queue) Run(ctx context.Context, every time.Duration, h Handler) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	q.log.Info().Dur("poll_interval", every).Msg("delay queue poller started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.drainDue(ctx, h); err != nil && ctx.Err() == nil {
				q.log.Error().Err(err).Msg("drain due jobs")
			}
		}
	}
}

func (q *Queue) drainDue(ctx context.Context, h Handler) error {
	max := strconv.FormatInt(q.now().UnixMilli(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return err
	}

	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another worker claimed it
		}
		orderID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			q.log.Error().Str("member", m).Msg("dropping malformed job")
			continue
		}
		if err := h(ctx, orderID); err != nil {
			q.log.Error().Err(err).Int64("order_id", orderID).Msg("job failed, re-scheduling")
			if err := q.Schedule(ctx, orderID, retryDelay); err != nil {
				return err
			}
		}
	}
	return nil
}
