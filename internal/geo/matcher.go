package geo

import (
	"sort"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Match returns the observations within the location's alert radius whose
// severity is at least minSeverity, ordered by severity desc then distance asc.
// Equal keys keep their input order.
func Match(loc models.MonitoredLocation, observations []models.HazardObservation, minSeverity models.Severity) models.LocationMatch {
	matched := make([]models.ObservationMatch, 0, len(observations))
	for _, o := range observations {
		if !o.Severity.AtLeast(minSeverity) {
			continue
		}
		d := Distance(loc.Coords, o.Coords)
		if d > loc.AlertRadiusMeters {
			continue
		}
		matched = append(matched, models.ObservationMatch{HazardObservation: o, DistanceMeters: d})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Severity != matched[j].Severity {
			return matched[i].Severity > matched[j].Severity
		}
		return matched[i].DistanceMeters < matched[j].DistanceMeters
	})

	return models.LocationMatch{Location: loc, Observations: matched}
}

// Filter keeps only the matched observations that satisfy keep, preserving order.
func Filter(m models.LocationMatch, keep func(models.ObservationMatch) bool) models.LocationMatch {
	out := models.LocationMatch{Location: m.Location, Observations: make([]models.ObservationMatch, 0, len(m.Observations))}
	for _, o := range m.Observations {
		if keep(o) {
			out.Observations = append(out.Observations, o)
		}
	}
	return out
}
