// Package cache provides the Redis-backed read-through cache for current
// weather lookups.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// Pinger is the subset of the Redis client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Probe adapts a Redis client to the health check interface.
type Probe struct {
	client Pinger
}

// NewProbe creates a health probe for client.
func NewProbe(client Pinger) *Probe {
	return &Probe{client: client}
}

// Check issues PING.
func (p *Probe) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
