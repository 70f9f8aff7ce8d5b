package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cncaiprojem/progressd/internal/progress"
)

// TaskStateSink mirrors each published message into the external
// task-runner's own state store (a set_state(task_id, state, meta) call)
// so out-of-band pollers see the same cursor without subscribing to the
// broker.
type TaskStateSink interface {
	SetState(ctx context.Context, taskID, state string, msg *progress.Message) error
}

type noopTaskStateSink struct{}

func (noopTaskStateSink) SetState(context.Context, string, string, *progress.Message) error {
	return nil
}

// RedisTaskStateSink is the reference TaskStateSink implementation. It
// reuses the broker's own Redis client rather than adding a second
// dependency purely for this mirror.
type RedisTaskStateSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTaskStateSink(client *redis.Client, ttl time.Duration) *RedisTaskStateSink {
	return &RedisTaskStateSink{client: client, ttl: ttl}
}

type taskStateRecord struct {
	State   string             `json:"state"`
	Meta    *progress.Message  `json:"meta"`
	SetAt   time.Time          `json:"set_at"`
}

func (s *RedisTaskStateSink) SetState(ctx context.Context, taskID, state string, msg *progress.Message) error {
	if taskID == "" {
		return nil
	}
	record := taskStateRecord{State: state, Meta: msg, SetAt: time.Now().UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("reporter: encode task state: %w", err)
	}
	key := "task:state:" + taskID
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("reporter: set task state %s: %w", taskID, err)
	}
	return nil
}
