package app

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/engine"
	"github.com/mr1hm/go-flood-alerts/internal/geo"
	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{Count: 1, BufferSize: 1, LocationsPerCycle: 2},
		Sources: config.SourcesConfig{
			SensorsEnabled:      true,
			ForecastConcurrency: 1,
		},
		Cache:   config.CacheConfig{ForecastTTL: time.Minute},
		Content: config.ContentConfig{Retries: 3, RetryBase: 2 * time.Second},
		DB:      config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
	}
}

func TestBuild_RecordsWithoutChannels(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 28, 3, 0, 0, 0, time.UTC))

	a, err := Build(ctx, testConfig(), nil, clock)
	require.NoError(t, err)
	defer a.Close()

	home := models.Coordinates{Latitude: 16.054, Longitude: 108.202}
	settings := models.DefaultAlertSettings()
	settings.Enabled = true
	require.NoError(t, a.Users.SaveSettings(ctx, "alice", settings))
	require.NoError(t, a.Users.SaveLocation(ctx, "alice", models.MonitoredLocation{
		ID: "home", Coords: home, AlertRadiusMeters: 1000,
	}))

	lat := home.Latitude + 400/geo.EarthRadiusMeters*180/math.Pi
	lon, percent := home.Longitude, 92.0
	require.NoError(t, a.Users.SaveSensor(ctx, models.SensorRecord{ID: "s1", Latitude: &lat, Longitude: &lon, Percent: &percent}))

	_, events := a.Broadcaster.Subscribe("alice")

	report, err := a.Engine.RunCycle(ctx, "alice", engine.TriggerManual)
	require.NoError(t, err)
	require.Len(t, report.Locations, 1)
	assert.Equal(t, engine.OutcomeAlerted, report.Locations[0].Outcome)
	assert.Empty(t, report.Locations[0].Dispatch)
	assert.False(t, report.Delivered())

	select {
	case e := <-events:
		assert.Equal(t, models.SeverityCritical, e.Severity)
	case <-time.After(time.Second):
		t.Fatal("recorded alert was not broadcast")
	}

	// Nothing was delivered, so the location is not put in cool-down.
	loc, err := a.Users.GetLocation(ctx, "alice", "home")
	require.NoError(t, err)
	assert.Nil(t, loc.LastAlertAt)
	assert.Equal(t, models.SeverityCritical, loc.Status)
}
