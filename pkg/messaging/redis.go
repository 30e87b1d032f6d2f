package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/usher/pkg/storage/postgres"
)

// RedisPublisher appends notifications to redis streams.
type RedisPublisher struct {
	redis  *postgres.RedisClient
	maxLen int64
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher. maxLen bounds each stream
// approximately; zero disables trimming.
func NewRedisPublisher(redis *postgres.RedisClient, maxLen int64) *RedisPublisher {
	return &RedisPublisher{redis: redis, maxLen: maxLen}
}

// Publish appends one entry carrying the payload, a fresh event id consumers
// can deduplicate on, and the publish time.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, payload []byte) error {
	if stream == "" {
		return &PublishError{Stream: stream, Err: fmt.Errorf("stream name is empty")}
	}

	values := map[string]interface{}{
		"payload":      string(payload),
		"event":        uuid.NewString(),
		"published_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := p.redis.XAdd(ctx, stream, p.maxLen, values); err != nil {
		return &PublishError{Stream: stream, Err: err}
	}
	return nil
}
