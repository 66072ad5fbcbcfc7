package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

// FloodCapacityCm is the water level treated as 100% when a sensor reports
// no percent of its own.
const FloodCapacityCm = 100.0

type SensorReader interface {
	ListSensors(ctx context.Context) ([]models.SensorRecord, error)
}

// SensorSource turns stored live sensor records into observations.
type SensorSource struct {
	reader  SensorReader
	clock   clockwork.Clock
	metrics *observability.Metrics
}

func NewSensorSource(reader SensorReader, clock clockwork.Clock, metrics *observability.Metrics) *SensorSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SensorSource{reader: reader, clock: clock, metrics: metrics}
}

func (s *SensorSource) Name() models.HazardSource {
	return models.HazardSourceSensor
}

func (s *SensorSource) Observe(ctx context.Context, q Query) ([]models.HazardObservation, error) {
	records, err := s.reader.ListSensors(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sensors: %w", err)
	}

	now := s.clock.Now()
	observations := make([]models.HazardObservation, 0, len(records))
	for _, rec := range records {
		if !q.monitors(rec.ID) {
			continue
		}
		o, ok := ObservationFromSensor(rec, now)
		if !ok {
			slog.Debug("skipping sensor without coordinates", "sensor", rec.ID)
			if s.metrics != nil {
				s.metrics.SkippedSensors.Inc()
			}
			continue
		}
		observations = append(observations, o)
	}
	return observations, nil
}

// ObservationFromSensor normalizes one record. It reports false when the
// record has no usable position.
func ObservationFromSensor(rec models.SensorRecord, now time.Time) (models.HazardObservation, bool) {
	if rec.Latitude == nil || rec.Longitude == nil {
		return models.HazardObservation{}, false
	}
	coords := models.Coordinates{Latitude: *rec.Latitude, Longitude: *rec.Longitude}
	if !coords.Valid() {
		return models.HazardObservation{}, false
	}

	var magnitude float64
	switch {
	case rec.Percent != nil:
		magnitude = *rec.Percent
	case rec.WaterLevelCm != nil:
		magnitude = *rec.WaterLevelCm / FloodCapacityCm * 100
	}
	magnitude = models.ClampMagnitude(magnitude)

	severity, err := models.ParseSeverity(rec.Status)
	if rec.Status == "" || err != nil {
		severity = models.SeverityFromMagnitude(magnitude)
	}

	observedAt := now
	if rec.UpdatedAt != nil {
		observedAt = *rec.UpdatedAt
	}

	return models.HazardObservation{
		SourceID:         rec.ID,
		Source:           models.HazardSourceSensor,
		Name:             rec.Name,
		Coords:           coords,
		MagnitudePercent: magnitude,
		Severity:         severity,
		ObservedAt:       observedAt,
		WaterLevelCm:     rec.WaterLevelCm,
	}, true
}
