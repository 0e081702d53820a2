package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupe shares seen ids between instances with SETNX + TTL.
type RedisDedupe struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisDedupe(client redis.Cmdable, prefix string, ttl time.Duration) (*RedisDedupe, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}
	if prefix == "" {
		prefix = "dedupe:"
	}
	return &RedisDedupe{client: client, ttl: ttl, prefix: prefix}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX: %w", err)
	}
	return !ok, nil
}

func (d *RedisDedupe) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis Del: %w", err)
	}
	return nil
}
