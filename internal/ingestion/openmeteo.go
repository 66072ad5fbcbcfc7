package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const openMeteoTimeLayout = "2006-01-02T15:04"

type openMeteoResponse struct {
	Hourly openMeteoHourly `json:"hourly"`
}

type openMeteoHourly struct {
	Time          []string  `json:"time"`
	Precipitation []float64 `json:"precipitation"`
	Temperature   []float64 `json:"temperature_2m"`
	Humidity      []float64 `json:"relative_humidity_2m"`
	WindSpeed     []float64 `json:"wind_speed_10m"`
}

// OpenMeteoClient reads hourly forecasts from the Open-Meteo API.
type OpenMeteoClient struct {
	baseURL string
	client  *http.Client
}

func NewOpenMeteoClient(baseURL string, retries int, timeout time.Duration) *OpenMeteoClient {
	rC := retryablehttp.NewClient()
	rC.Logger = nil
	rC.RetryMax = retries
	client := rC.StandardClient()
	client.Timeout = timeout

	return &OpenMeteoClient{baseURL: baseURL, client: client}
}

func (c *OpenMeteoClient) ReadForecast(ctx context.Context, p models.Coordinates) ([]models.ForecastSample, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(p.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(p.Longitude, 'f', 4, 64))
	q.Set("hourly", "precipitation,temperature_2m,relative_humidity_2m,wind_speed_10m")
	q.Set("forecast_days", "2")
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	return data.Hourly.samples()
}

func (h openMeteoHourly) samples() ([]models.ForecastSample, error) {
	samples := make([]models.ForecastSample, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, err := time.Parse(openMeteoTimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("parse forecast time %q: %w", raw, err)
		}
		samples = append(samples, models.ForecastSample{
			Time:        ts,
			RainfallMm:  at(h.Precipitation, i),
			Temperature: at(h.Temperature, i),
			Humidity:    at(h.Humidity, i),
			WindSpeed:   at(h.WindSpeed, i),
		})
	}
	return samples, nil
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
