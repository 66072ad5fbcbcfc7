package api

import (
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func point(c models.Coordinates) Geometry {
	return Geometry{Type: "Point", Coordinates: []float64{c.Longitude, c.Latitude}}
}

func locationsToGeoJSON(locations []models.MonitoredLocation) FeatureCollection {
	features := make([]Feature, 0, len(locations))

	for _, l := range locations {
		props := map[string]any{
			"id":                  l.ID,
			"name":                l.DisplayName(),
			"address":             l.Address,
			"alert_radius_meters": l.AlertRadiusMeters,
			"priority":            l.Priority,
			"type":                l.Type,
			"status":              l.Status.String(),
		}
		if l.StatusUpdatedAt != nil {
			props["status_updated_at"] = l.StatusUpdatedAt
		}
		if l.LastAlertAt != nil {
			props["last_alert_at"] = l.LastAlertAt
		}
		features = append(features, Feature{
			Type:       "Feature",
			Geometry:   point(l.Coords),
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

// sensorsToGeoJSON skips records without coordinates.
func sensorsToGeoJSON(records []models.SensorRecord, now time.Time) FeatureCollection {
	features := make([]Feature, 0, len(records))

	for _, r := range records {
		o, ok := ingestion.ObservationFromSensor(r, now)
		if !ok {
			continue
		}
		props := map[string]any{
			"id":                r.ID,
			"name":              r.Name,
			"magnitude_percent": o.MagnitudePercent,
			"severity":          o.Severity.String(),
			"observed_at":       o.ObservedAt,
		}
		if r.WaterLevelCm != nil {
			props["water_level_cm"] = *r.WaterLevelCm
		}
		features = append(features, Feature{
			Type:       "Feature",
			Geometry:   point(o.Coords),
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
