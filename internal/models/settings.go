package models

import (
	"fmt"
	"slices"
	"time"
)

const MinCheckInterval = time.Minute

type AlertSettings struct {
	Enabled             bool       `json:"enabled"`
	CheckIntervalMs     uint       `json:"checkIntervalMs"`
	MonitoredSensorIDs  []string   `json:"monitoredSensorIds"`
	WaterLevelThreshold float64    `json:"waterLevelThreshold"`
	RiskLevelThreshold  Severity   `json:"riskLevelThreshold"`
	NotifyEmail         *string    `json:"notifyEmail,omitempty"`
	NotifyPhone         *string    `json:"notifyPhone,omitempty"`
	EmailEnabled        bool       `json:"emailEnabled"`
	ChatEnabled         bool       `json:"chatEnabled"`
	SMSEnabled          bool       `json:"smsEnabled"`
	CooldownMinutes     uint       `json:"cooldownMinutes"`
	LastCheckedAt       *time.Time `json:"lastCheckedAt,omitempty"`
	LastAlertSentAt     *time.Time `json:"lastAlertSentAt,omitempty"`
}

func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		Enabled:             false,
		CheckIntervalMs:     uint((5 * time.Minute).Milliseconds()),
		MonitoredSensorIDs:  []string{},
		WaterLevelThreshold: DangerMagnitude,
		RiskLevelThreshold:  SeverityDanger,
		EmailEnabled:        true,
		ChatEnabled:         true,
	}
}

func (s AlertSettings) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMs) * time.Millisecond
}

func (s AlertSettings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// MonitorsSensor reports whether the sensor is selected. An empty selection
// means every sensor is monitored.
func (s AlertSettings) MonitorsSensor(id string) bool {
	return len(s.MonitoredSensorIDs) == 0 || slices.Contains(s.MonitoredSensorIDs, id)
}

func (s AlertSettings) Validate() error {
	if s.CheckInterval() < MinCheckInterval {
		return fmt.Errorf("checkIntervalMs must be at least %d", MinCheckInterval.Milliseconds())
	}
	if s.WaterLevelThreshold < 0 || s.WaterLevelThreshold > 100 {
		return fmt.Errorf("waterLevelThreshold must be within 0..100, got %v", s.WaterLevelThreshold)
	}
	if !s.RiskLevelThreshold.Valid() {
		return fmt.Errorf("invalid riskLevelThreshold %d", s.RiskLevelThreshold)
	}
	return nil
}

// SettingsOverrides carries a partial settings update. Nil fields are left untouched.
type SettingsOverrides struct {
	Enabled             *bool     `json:"enabled,omitempty"`
	CheckIntervalMs     *uint     `json:"checkIntervalMs,omitempty"`
	MonitoredSensorIDs  *[]string `json:"monitoredSensorIds,omitempty"`
	WaterLevelThreshold *float64  `json:"waterLevelThreshold,omitempty"`
	RiskLevelThreshold  *Severity `json:"riskLevelThreshold,omitempty"`
	NotifyEmail         *string   `json:"notifyEmail,omitempty"`
	NotifyPhone         *string   `json:"notifyPhone,omitempty"`
	EmailEnabled        *bool     `json:"emailEnabled,omitempty"`
	ChatEnabled         *bool     `json:"chatEnabled,omitempty"`
	SMSEnabled          *bool     `json:"smsEnabled,omitempty"`
	CooldownMinutes     *uint     `json:"cooldownMinutes,omitempty"`
}

// ApplyOverrides returns base with every non-nil override applied. Neither
// argument is modified. An empty NotifyEmail/NotifyPhone clears the field.
func ApplyOverrides(base AlertSettings, o SettingsOverrides) AlertSettings {
	out := base
	out.MonitoredSensorIDs = slices.Clone(base.MonitoredSensorIDs)
	out.NotifyEmail = cloneString(base.NotifyEmail)
	out.NotifyPhone = cloneString(base.NotifyPhone)

	if o.Enabled != nil {
		out.Enabled = *o.Enabled
	}
	if o.CheckIntervalMs != nil {
		out.CheckIntervalMs = *o.CheckIntervalMs
	}
	if o.MonitoredSensorIDs != nil {
		out.MonitoredSensorIDs = slices.Clone(*o.MonitoredSensorIDs)
	}
	if o.WaterLevelThreshold != nil {
		out.WaterLevelThreshold = *o.WaterLevelThreshold
	}
	if o.RiskLevelThreshold != nil {
		out.RiskLevelThreshold = *o.RiskLevelThreshold
	}
	if o.NotifyEmail != nil {
		out.NotifyEmail = nonEmpty(*o.NotifyEmail)
	}
	if o.NotifyPhone != nil {
		out.NotifyPhone = nonEmpty(*o.NotifyPhone)
	}
	if o.EmailEnabled != nil {
		out.EmailEnabled = *o.EmailEnabled
	}
	if o.ChatEnabled != nil {
		out.ChatEnabled = *o.ChatEnabled
	}
	if o.SMSEnabled != nil {
		out.SMSEnabled = *o.SMSEnabled
	}
	if o.CooldownMinutes != nil {
		out.CooldownMinutes = *o.CooldownMinutes
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
