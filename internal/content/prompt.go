package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Schema is a JSON response schema in the provider's OpenAPI subset.
type Schema map[string]any

var ResponseSchema = Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"subject":  map[string]any{"type": "STRING"},
		"htmlBody": map[string]any{"type": "STRING"},
	},
	"required": []string{"subject", "htmlBody"},
}

// BuildPrompt renders a single prompt covering every observation matched to
// the location.
func BuildPrompt(m models.LocationMatch, now time.Time) string {
	loc := m.Location

	var b strings.Builder
	b.WriteString("You write short flood safety alerts for residents. ")
	b.WriteString("Answer with JSON containing \"subject\" (under 80 characters) and \"htmlBody\" ")
	b.WriteString("(simple HTML with <p> and <ul>, no scripts or styles).\n\n")

	fmt.Fprintf(&b, "Location: %s\n", loc.DisplayName())
	if loc.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", loc.Address)
	}
	if loc.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", loc.Type)
	}
	fmt.Fprintf(&b, "Alert radius: %.0f m\n", loc.AlertRadiusMeters)
	fmt.Fprintf(&b, "Overall severity: %s\n", m.MostSevere())
	fmt.Fprintf(&b, "Time: %s\n\n", now.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "Observations (%d):\n", len(m.Observations))
	for i, o := range m.Observations {
		fmt.Fprintf(&b, "%d. %s %q: %s, %.0f%% of flood capacity, %.0f m away",
			i+1, o.Source, observationName(o), o.Severity, o.MagnitudePercent, o.DistanceMeters)
		if o.WaterLevelCm != nil {
			fmt.Fprintf(&b, ", water level %.0f cm", *o.WaterLevelCm)
		}
		if o.Rainfall3h != nil {
			fmt.Fprintf(&b, ", rain next 3h %.1f mm", *o.Rainfall3h)
		}
		if o.Rainfall12h != nil {
			fmt.Fprintf(&b, ", next 12h %.1f mm", *o.Rainfall12h)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nInclude what is happening, how close it is, and concrete safety steps for this severity.")
	return b.String()
}

func observationName(o models.ObservationMatch) string {
	if o.Name != "" {
		return o.Name
	}
	return o.SourceID
}
