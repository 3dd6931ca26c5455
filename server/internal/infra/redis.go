package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient parses QUEUE_URL (redis:// or rediss:// for TLS) and
// returns a connected client, failing fast with a bounded ping so a
// misconfigured store is caught at startup rather than at first lease.
func NewRedisClient(ctx context.Context, queueURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(queueURL)
	if err != nil {
		return nil, fmt.Errorf("parse queue url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect queue store: %w", err)
	}

	return client, nil
}
