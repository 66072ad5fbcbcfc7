package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func TestKey(t *testing.T) {
	a := models.Coordinates{Latitude: 16.0544, Longitude: 108.2022}
	near := models.Coordinates{Latitude: 16.05441, Longitude: 108.20221}
	far := models.Coordinates{Latitude: 16.10, Longitude: 108.15}

	assert.Equal(t, Key(a), Key(near))
	assert.NotEqual(t, Key(a), Key(far))
	assert.Len(t, Key(a), len("forecast:")+keyPrecision)
}

func TestMemoryCache_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewMemoryCache(10*time.Minute, clock)
	ctx := context.Background()
	p := models.Coordinates{Latitude: 16.05, Longitude: 108.2}

	_, ok, err := c.Get(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	samples := []models.ForecastSample{{RainfallMm: 12}, {RainfallMm: 30}}
	require.NoError(t, c.Set(ctx, p, samples))

	got, ok, _ := c.Get(ctx, p)
	require.True(t, ok)
	assert.Equal(t, samples, got)

	got[0].RainfallMm = 999
	again, _, _ := c.Get(ctx, p)
	assert.Equal(t, 12.0, again[0].RainfallMm)

	clock.Advance(10 * time.Minute)
	_, ok, _ = c.Get(ctx, p)
	assert.False(t, ok)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url", time.Minute)
	assert.Error(t, err)
}
