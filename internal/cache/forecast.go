// Package cache stores recent forecast samples keyed by the geohash of the
// point they were fetched for.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/mmcloughlin/geohash"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Precision 7 cells are roughly 150 m across, well inside a forecast grid cell.
const keyPrecision = 7

type ForecastCache interface {
	Get(ctx context.Context, c models.Coordinates) ([]models.ForecastSample, bool, error)
	Set(ctx context.Context, c models.Coordinates, samples []models.ForecastSample) error
}

func Key(c models.Coordinates) string {
	return "forecast:" + geohash.EncodeWithPrecision(c.Latitude, c.Longitude, keyPrecision)
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, c models.Coordinates) ([]models.ForecastSample, bool, error) {
	res, err := r.rdb.Get(ctx, Key(c)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", Key(c), err)
	}

	var samples []models.ForecastSample
	if err := json.Unmarshal([]byte(res), &samples); err != nil {
		return nil, false, fmt.Errorf("decode cached forecast: %w", err)
	}
	return samples, true, nil
}

func (r *RedisCache) Set(ctx context.Context, c models.Coordinates, samples []models.ForecastSample) error {
	data, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, Key(c), data, r.ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

type memoryEntry struct {
	samples []models.ForecastSample
	expires time.Time
}

// MemoryCache is the in-process cache used when no Redis URL is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewMemoryCache(ttl time.Duration, clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (m *MemoryCache) Get(_ context.Context, c models.Coordinates) ([]models.ForecastSample, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(c)
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]models.ForecastSample(nil), e.samples...), true, nil
}

func (m *MemoryCache) Set(_ context.Context, c models.Coordinates, samples []models.ForecastSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[Key(c)] = memoryEntry{
		samples: append([]models.ForecastSample(nil), samples...),
		expires: m.clock.Now().Add(m.ttl),
	}
	return nil
}
