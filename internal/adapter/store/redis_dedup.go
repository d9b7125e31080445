package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper shares the message dedup window across instances. A message
// id is claimed with SET NX and expires after the window.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, window: window}
}

func (r *RedisDeduper) MarkSeen(ctx context.Context, messageID string) (bool, error) {
	claimed, err := r.client.SetNX(ctx, "seen:"+messageID, 1, r.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim failed: %w", err)
	}
	return !claimed, nil
}
