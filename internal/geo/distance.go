package geo

import (
	"github.com/golang/geo/s2"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

// Distance returns the great-circle (haversine) distance between a and b in meters.
func Distance(a, b models.Coordinates) float64 {
	pa := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	pb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return pa.Distance(pb).Radians() * EarthRadiusMeters
}
