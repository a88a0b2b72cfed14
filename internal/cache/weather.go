package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"krishisat/internal/risk"
)

// WeatherFetcher fetches current conditions at a point.
type WeatherFetcher interface {
	FetchCurrent(ctx context.Context, lat, lon float64) (risk.WeatherObservation, error)
}

// KV is the subset of the Redis client the weather cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// WeatherCache serves repeated lookups for the same ~1 km cell from Redis.
// Cache errors never fail a lookup; they fall through to the provider.
type WeatherCache struct {
	next   WeatherFetcher
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewWeatherCache wraps next with a Redis read-through cache.
func NewWeatherCache(next WeatherFetcher, kv KV, ttl time.Duration, logger *slog.Logger) *WeatherCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherCache{next: next, kv: kv, ttl: ttl, logger: logger, now: time.Now}
}

// WeatherKey rounds coordinates to two decimals.
func WeatherKey(lat, lon float64) string {
	return fmt.Sprintf("weather:%.2f:%.2f", lat, lon)
}

// FetchCurrent returns the cached observation for the cell or fetches and
// stores a fresh one. Cached hits carry today's day of year, not the one
// recorded at fetch time.
func (c *WeatherCache) FetchCurrent(ctx context.Context, lat, lon float64) (risk.WeatherObservation, error) {
	key := WeatherKey(lat, lon)

	data, err := c.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var obs risk.WeatherObservation
		if jsonErr := json.Unmarshal(data, &obs); jsonErr == nil {
			obs.DayOfYear = c.now().YearDay()
			return obs, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt weather cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "weather cache read failed", "key", key, "error", err)
	}

	obs, err := c.next.FetchCurrent(ctx, lat, lon)
	if err != nil {
		return obs, err
	}

	payload, err := json.Marshal(obs)
	if err == nil {
		err = c.kv.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.WarnContext(ctx, "weather cache write failed", "key", key, "error", err)
	}
	return obs, nil
}
