// Package ingestion produces normalized hazard observations from live sensor
// telemetry and short-term rainfall forecasts.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

var ErrSourceUnavailable = errors.New("hazard source unavailable")

// Query scopes one observation pass to a user's locations and sensor selection.
type Query struct {
	Locations          []models.MonitoredLocation
	MonitoredSensorIDs []string
}

func (q Query) monitors(sensorID string) bool {
	return len(q.MonitoredSensorIDs) == 0 || slices.Contains(q.MonitoredSensorIDs, sensorID)
}

type Source interface {
	Name() models.HazardSource
	Observe(ctx context.Context, q Query) ([]models.HazardObservation, error)
}

// Observer runs every configured source concurrently. A failing source
// contributes no observations; only when all of them fail is the pass
// reported as unavailable.
type Observer struct {
	sources []Source
	metrics *observability.Metrics
}

func NewObserver(metrics *observability.Metrics, sources ...Source) *Observer {
	return &Observer{sources: sources, metrics: metrics}
}

func (o *Observer) Observe(ctx context.Context, q Query) ([]models.HazardObservation, error) {
	if len(o.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrSourceUnavailable)
	}

	results := make([][]models.HazardObservation, len(o.sources))
	errs := make([]error, len(o.sources))

	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i], errs[i] = src.Observe(ctx, q)
		}(i, src)
	}
	wg.Wait()

	var (
		observations []models.HazardObservation
		failed       int
	)
	for i, src := range o.sources {
		if errs[i] != nil {
			failed++
			slog.Warn("hazard source failed", "source", src.Name(), "error", errs[i])
			if o.metrics != nil {
				o.metrics.SourceErrors.WithLabelValues(string(src.Name())).Inc()
			}
			continue
		}
		if o.metrics != nil {
			o.metrics.Observations.WithLabelValues(string(src.Name())).Add(float64(len(results[i])))
		}
		observations = append(observations, results[i]...)
	}

	if failed == len(o.sources) {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, errors.Join(errs...))
	}
	return observations, nil
}
