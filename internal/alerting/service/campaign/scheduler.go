package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Scheduler queues campaign steps for later execution. Campaigns never
// sleep a goroutine between steps; they re-enter through the scheduler so
// hundreds can be live at once and tests can drive them with a fake.
type Scheduler interface {
	Schedule(ctx context.Context, task *Task, due time.Time) error
}

const queueKey = "alert:campaign:queue"

// claimDue atomically pops queue members whose score is due, so only one
// poller processes each step.
var claimDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for i = 1, #due do
  redis.call('ZREM', KEYS[1], due[i])
end
return due
`)

// RedisScheduler keeps the delayed-step queue in a Redis sorted set scored
// by due time.
type RedisScheduler struct {
	rdb      *redis.Client
	interval time.Duration
	batch    int
}

func NewRedisScheduler(rdb *redis.Client, interval time.Duration, batch int) *RedisScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &RedisScheduler{rdb: rdb, interval: interval, batch: batch}
}

func (s *RedisScheduler) Schedule(ctx context.Context, task *Task, due time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign task: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("failed to queue campaign step: %w", err)
	}
	return nil
}

// Run polls the queue until the context is cancelled, handing each due task
// to handler. Tasks that fail to decode are dropped with a log line rather
// than blocking the queue.
func (s *RedisScheduler) Run(ctx context.Context, handler func(ctx context.Context, task *Task)) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.drainDue(ctx, handler); err != nil {
				log.Error().Err(err).Msg("campaign queue poll failed")
			}
		}
	}
}

func (s *RedisScheduler) drainDue(ctx context.Context, handler func(ctx context.Context, task *Task)) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	res, err := claimDue.Run(ctx, s.rdb, []string{queueKey}, now, s.batch).Result()
	if err != nil {
		return fmt.Errorf("failed to claim due campaign steps: %w", err)
	}
	members, ok := res.([]interface{})
	if !ok {
		return fmt.Errorf("unexpected claim result type %T", res)
	}

	for _, member := range members {
		raw, ok := member.(string)
		if !ok {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			log.Error().Err(err).Msg("dropping undecodable campaign task")
			continue
		}
		handler(ctx, &task)
	}
	return nil
}
