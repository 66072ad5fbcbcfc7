package content

import (
	"fmt"
	"html"
	"strings"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

var guidance = map[models.Severity][]string{
	models.SeverityWarning: {
		"Monitor local news and official channels.",
		"Move valuables and documents off the floor.",
	},
	models.SeverityDanger: {
		"Prepare to evacuate and keep an emergency bag ready.",
		"Avoid low-lying roads and underpasses.",
		"Charge your phone and keep it with you.",
	},
	models.SeverityCritical: {
		"Move to higher ground now.",
		"Do not walk or drive through flood water.",
		"Follow instructions from local authorities.",
	},
}

// Fallback builds deterministic alert content from the match alone.
func Fallback(m models.LocationMatch) Content {
	sev := m.MostSevere()
	name := m.Location.DisplayName()

	subject := fmt.Sprintf("[%s] Flood alert for %s", strings.ToUpper(sev.String()), name)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Flood risk near <strong>%s</strong> is <strong>%s</strong>. Highest level observed: %.0f%%.</p>",
		html.EscapeString(name), sev, m.MaxMagnitude())

	b.WriteString("<ul>")
	for _, o := range m.Observations {
		fmt.Fprintf(&b, "<li>%s: %s, %.0f%%, %.0f m away</li>",
			html.EscapeString(observationName(o)), o.Severity, o.MagnitudePercent, o.DistanceMeters)
	}
	b.WriteString("</ul>")

	if steps := guidance[sev]; len(steps) > 0 {
		b.WriteString("<p>What to do:</p><ul>")
		for _, s := range steps {
			fmt.Fprintf(&b, "<li>%s</li>", s)
		}
		b.WriteString("</ul>")
	}

	return Content{Subject: subject, Body: b.String(), Generated: false}
}
