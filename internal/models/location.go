package models

import (
	"fmt"
	"time"
)

type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type LocationType string

const (
	LocationResidential LocationType = "residential"
	LocationOffice      LocationType = "office"
	LocationSchool      LocationType = "school"
	LocationHospital    LocationType = "hospital"
	LocationOther       LocationType = "other"
)

type MonitoredLocation struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Address           string       `json:"address,omitempty"`
	Coords            Coordinates  `json:"coords"`
	AlertRadiusMeters float64      `json:"alertRadiusMeters"`
	Priority          Priority     `json:"priority"`
	Type              LocationType `json:"type"`
	Status            Severity     `json:"status"`
	StatusUpdatedAt   *time.Time   `json:"statusUpdatedAt,omitempty"`
	LastAlertAt       *time.Time   `json:"lastAlertAt,omitempty"`
}

// DisplayName falls back to the address, then the id.
func (l MonitoredLocation) DisplayName() string {
	switch {
	case l.Name != "":
		return l.Name
	case l.Address != "":
		return l.Address
	}
	return l.ID
}

func (l MonitoredLocation) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("location id is required")
	}
	if !l.Coords.Valid() {
		return fmt.Errorf("invalid coordinates %v,%v", l.Coords.Latitude, l.Coords.Longitude)
	}
	if l.AlertRadiusMeters <= 0 {
		return fmt.Errorf("alertRadiusMeters must be positive")
	}
	switch l.Priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		return fmt.Errorf("invalid priority %q", l.Priority)
	}
	switch l.Type {
	case "", LocationResidential, LocationOffice, LocationSchool, LocationHospital, LocationOther:
	default:
		return fmt.Errorf("invalid location type %q", l.Type)
	}
	return nil
}
