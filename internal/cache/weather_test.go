package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"krishisat/internal/risk"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	data    map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKV) Get(_ context.Context, key string) *redis.StringCmd {
	if m.readErr != nil {
		return redis.NewStringResult("", m.readErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryKV) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

type countingFetcher struct {
	calls int
	obs   risk.WeatherObservation
	err   error
}

func (f *countingFetcher) FetchCurrent(context.Context, float64, float64) (risk.WeatherObservation, error) {
	f.calls++
	return f.obs, f.err
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestWeatherKey(t *testing.T) {
	assert.Equal(t, "weather:28.61:77.21", WeatherKey(28.6139, 77.2090))
	assert.Equal(t, "weather:-1.00:0.50", WeatherKey(-1, 0.5))
}

func TestWeatherCacheReadThrough(t *testing.T) {
	kv := newMemoryKV()
	fetcher := &countingFetcher{obs: risk.WeatherObservation{TemperatureC: 33, HumidityPct: 70, DayOfYear: 200}}
	c := NewWeatherCache(fetcher, kv, 10*time.Minute, quietLogger)
	c.now = func() time.Time { return time.Date(2025, time.July, 19, 10, 0, 0, 0, time.UTC) }

	first, err := c.FetchCurrent(context.Background(), 28.6139, 77.2090)
	require.NoError(t, err)
	second, err := c.FetchCurrent(context.Background(), 28.6141, 77.2089)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 10*time.Minute, kv.ttls["weather:28.61:77.21"])
}

func TestWeatherCacheHitRestampsDayOfYear(t *testing.T) {
	kv := newMemoryKV()
	fetcher := &countingFetcher{obs: risk.WeatherObservation{TemperatureC: 28, HumidityPct: 80, DayOfYear: 200}}
	c := NewWeatherCache(fetcher, kv, 10*time.Minute, quietLogger)

	_, err := c.FetchCurrent(context.Background(), 18.52, 73.85)
	require.NoError(t, err)

	c.now = func() time.Time { return time.Date(2025, time.July, 20, 0, 3, 0, 0, time.UTC) }
	obs, err := c.FetchCurrent(context.Background(), 18.52, 73.85)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 201, obs.DayOfYear)
	assert.Equal(t, 28.0, obs.TemperatureC)
}

func TestWeatherCacheReadErrorFallsThrough(t *testing.T) {
	kv := newMemoryKV()
	kv.readErr = errors.New("connection refused")
	fetcher := &countingFetcher{obs: risk.WeatherObservation{TemperatureC: 30}}
	c := NewWeatherCache(fetcher, kv, time.Minute, quietLogger)

	obs, err := c.FetchCurrent(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 30.0, obs.TemperatureC)
	assert.Equal(t, 1, fetcher.calls)
}

func TestWeatherCacheCorruptEntry(t *testing.T) {
	kv := newMemoryKV()
	kv.data[WeatherKey(1, 1)] = "{not json"
	fetcher := &countingFetcher{obs: risk.WeatherObservation{TemperatureC: 25}}
	c := NewWeatherCache(fetcher, kv, time.Minute, quietLogger)

	obs, err := c.FetchCurrent(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 25.0, obs.TemperatureC)
	assert.Equal(t, 1, fetcher.calls)
}

func TestWeatherCacheProviderErrorNotCached(t *testing.T) {
	kv := newMemoryKV()
	fetcher := &countingFetcher{err: errors.New("upstream down")}
	c := NewWeatherCache(fetcher, kv, time.Minute, quietLogger)

	_, err := c.FetchCurrent(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Empty(t, kv.data)
}
