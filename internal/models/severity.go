package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Severity is an ordered flood severity band. The zero value is SeveritySafe.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityWarning
	SeverityDanger
	SeverityCritical
)

// Magnitude thresholds (percent) for each band.
const (
	WarningMagnitude  = 25.0
	DangerMagnitude   = 60.0
	CriticalMagnitude = 80.0
)

var severityNames = [...]string{"safe", "warning", "danger", "critical"}

func (s Severity) String() string {
	if s < SeveritySafe || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) Valid() bool {
	return s >= SeveritySafe && s <= SeverityCritical
}

// AtLeast reports whether s is as severe as min or worse.
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "safe", "normal", "low":
		return SeveritySafe, nil
	case "warning", "medium":
		return SeverityWarning, nil
	case "danger", "high":
		return SeverityDanger, nil
	case "critical", "severe":
		return SeverityCritical, nil
	}
	return SeveritySafe, fmt.Errorf("unknown severity %q", v)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("severity must be a string: %w", err)
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ClampMagnitude bounds a magnitude to [0,100]. Unknown (NaN) readings count as 0.
func ClampMagnitude(m float64) float64 {
	switch {
	case math.IsNaN(m), m < 0:
		return 0
	case m > 100:
		return 100
	}
	return m
}

// SeverityFromMagnitude maps a clamped magnitude percent to its band.
func SeverityFromMagnitude(m float64) Severity {
	m = ClampMagnitude(m)
	switch {
	case m >= CriticalMagnitude:
		return SeverityCritical
	case m >= DangerMagnitude:
		return SeverityDanger
	case m >= WarningMagnitude:
		return SeverityWarning
	default:
		return SeveritySafe
	}
}
