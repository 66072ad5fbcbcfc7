package models

import "time"

type HazardSource string

const (
	HazardSourceSensor   HazardSource = "sensor"
	HazardSourceForecast HazardSource = "forecast"
)

// HazardObservation is one normalized reading produced per cycle.
type HazardObservation struct {
	SourceID         string       `json:"sourceId"` // sensor id or forecast area id
	Source           HazardSource `json:"source"`
	Name             string       `json:"name,omitempty"`
	Coords           Coordinates  `json:"coords"`
	MagnitudePercent float64      `json:"magnitudePercent"`
	Severity         Severity     `json:"severity"`
	ObservedAt       time.Time    `json:"observedAt"`

	WaterLevelCm *float64 `json:"waterLevelCm,omitempty"`
	Rainfall3h   *float64 `json:"rainfall3h,omitempty"`
	Rainfall6h   *float64 `json:"rainfall6h,omitempty"`
	Rainfall12h  *float64 `json:"rainfall12h,omitempty"`
}

type ObservationMatch struct {
	HazardObservation
	DistanceMeters float64 `json:"distanceMeters"`
}

// LocationMatch holds the observations inside a location's alert radius,
// ordered by severity desc then distance asc.
type LocationMatch struct {
	Location     MonitoredLocation  `json:"location"`
	Observations []ObservationMatch `json:"observations"`
}

func (m LocationMatch) Empty() bool {
	return len(m.Observations) == 0
}

// MostSevere returns the severity of the head observation, or Safe when empty.
func (m LocationMatch) MostSevere() Severity {
	if len(m.Observations) == 0 {
		return SeveritySafe
	}
	return m.Observations[0].Severity
}

// MaxMagnitude returns the highest magnitude among the matched observations.
func (m LocationMatch) MaxMagnitude() float64 {
	var highest float64
	for _, o := range m.Observations {
		if o.MagnitudePercent > highest {
			highest = o.MagnitudePercent
		}
	}
	return highest
}

// SensorRecord is a raw live sensor document. Pointer fields may be absent.
type SensorRecord struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Latitude     *float64   `json:"lat,omitempty"`
	Longitude    *float64   `json:"lon,omitempty"`
	WaterLevelCm *float64   `json:"waterLevelCm,omitempty"`
	Percent      *float64   `json:"percent,omitempty"`
	Status       string     `json:"status,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// ForecastSample is one hourly forecast point.
type ForecastSample struct {
	Time        time.Time `json:"time"`
	RainfallMm  float64   `json:"rainfallMm"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
}
