package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

type sensorFeedResponse struct {
	Features []sensorFeature `json:"features"`
}

type sensorFeature struct {
	ID         string           `json:"id"`
	Properties sensorProperties `json:"properties"`
	Geometry   *sensorGeometry  `json:"geometry"`
}

type sensorProperties struct {
	Name         string   `json:"name"`
	WaterLevelCm *float64 `json:"waterLevelCm"`
	Percent      *float64 `json:"percent"`
	Status       string   `json:"status"`
	UpdatedAt    int64    `json:"updatedAt"` // unix ms
}

type sensorGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

// SensorFeed reads live telemetry published as a GeoJSON FeatureCollection.
type SensorFeed struct {
	url    string
	client *http.Client
}

func NewSensorFeed(url string, timeout time.Duration) *SensorFeed {
	rC := retryablehttp.NewClient()
	rC.Logger = nil
	rC.RetryMax = 3
	client := rC.StandardClient()
	client.Timeout = timeout

	return &SensorFeed{url: url, client: client}
}

func (f *SensorFeed) Fetch(ctx context.Context) ([]models.SensorRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data sensorFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	records := make([]models.SensorRecord, 0, len(data.Features))
	for _, feat := range data.Features {
		if feat.ID == "" {
			continue
		}
		rec := models.SensorRecord{
			ID:           feat.ID,
			Name:         feat.Properties.Name,
			WaterLevelCm: feat.Properties.WaterLevelCm,
			Percent:      feat.Properties.Percent,
			Status:       feat.Properties.Status,
		}
		// Records without a position are kept; the sensor source skips them.
		if feat.Geometry != nil && len(feat.Geometry.Coordinates) >= 2 {
			lon, lat := feat.Geometry.Coordinates[0], feat.Geometry.Coordinates[1]
			rec.Longitude, rec.Latitude = &lon, &lat
		}
		if feat.Properties.UpdatedAt > 0 {
			ts := time.UnixMilli(feat.Properties.UpdatedAt).UTC()
			rec.UpdatedAt = &ts
		}
		records = append(records, rec)
	}

	return records, nil
}
