package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFromMagnitude_Monotonic(t *testing.T) {
	prev := SeveritySafe
	for m := 0.0; m <= 100.0; m += 0.5 {
		got := SeverityFromMagnitude(m)
		require.True(t, got.Valid(), "magnitude %v produced invalid severity", m)
		if got < prev {
			t.Fatalf("severity decreased at magnitude %v: %s -> %s", m, prev, got)
		}
		prev = got
	}
}

func TestSeverityFromMagnitude_Bands(t *testing.T) {
	tests := []struct {
		m    float64
		want Severity
	}{
		{0, SeveritySafe},
		{24.9, SeveritySafe},
		{25, SeverityWarning},
		{59.99, SeverityWarning},
		{60, SeverityDanger},
		{79.9, SeverityDanger},
		{80, SeverityCritical},
		{85, SeverityCritical},
		{150, SeverityCritical},
		{-5, SeveritySafe},
		{math.NaN(), SeveritySafe},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFromMagnitude(tt.m), "magnitude %v", tt.m)
	}
}

func TestClampMagnitude(t *testing.T) {
	assert.Equal(t, 0.0, ClampMagnitude(-1))
	assert.Equal(t, 0.0, ClampMagnitude(math.NaN()))
	assert.Equal(t, 100.0, ClampMagnitude(130))
	assert.Equal(t, 42.5, ClampMagnitude(42.5))
}

func TestSeverity_JSON(t *testing.T) {
	data, err := json.Marshal(SeverityDanger)
	require.NoError(t, err)
	assert.JSONEq(t, `"danger"`, string(data))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"Critical"`), &s))
	assert.Equal(t, SeverityCritical, s)

	assert.Error(t, json.Unmarshal([]byte(`"flooded"`), &s))
}

func TestApplyOverrides_DoesNotMutate(t *testing.T) {
	email := "a@example.com"
	base := DefaultAlertSettings()
	base.NotifyEmail = &email
	base.MonitoredSensorIDs = []string{"s1"}

	enabled := true
	interval := uint(120000)
	sensors := []string{"s2", "s3"}
	empty := ""
	out := ApplyOverrides(base, SettingsOverrides{
		Enabled:            &enabled,
		CheckIntervalMs:    &interval,
		MonitoredSensorIDs: &sensors,
		NotifyEmail:        &empty,
	})

	assert.True(t, out.Enabled)
	assert.Equal(t, uint(120000), out.CheckIntervalMs)
	assert.Equal(t, []string{"s2", "s3"}, out.MonitoredSensorIDs)
	assert.Nil(t, out.NotifyEmail)

	assert.False(t, base.Enabled)
	assert.Equal(t, []string{"s1"}, base.MonitoredSensorIDs)
	require.NotNil(t, base.NotifyEmail)
	assert.Equal(t, "a@example.com", *base.NotifyEmail)

	sensors[0] = "mutated"
	assert.Equal(t, "s2", out.MonitoredSensorIDs[0])
}

func TestAlertSettings_Validate(t *testing.T) {
	s := DefaultAlertSettings()
	require.NoError(t, s.Validate())

	s.CheckIntervalMs = 1000
	assert.Error(t, s.Validate())

	s = DefaultAlertSettings()
	s.WaterLevelThreshold = 120
	assert.Error(t, s.Validate())
}

func TestAlertSettings_MonitorsSensor(t *testing.T) {
	s := DefaultAlertSettings()
	assert.True(t, s.MonitorsSensor("anything"))

	s.MonitoredSensorIDs = []string{"s1"}
	assert.True(t, s.MonitorsSensor("s1"))
	assert.False(t, s.MonitorsSensor("s2"))
}

func TestDispatchResult(t *testing.T) {
	r := DispatchResult{
		ChannelEmail: {Attempted: true, Success: false, ErrorMessage: "boom"},
		ChannelChat:  {Skipped: true, SkippedReason: "no chat id"},
	}
	assert.True(t, r.Attempted())
	assert.False(t, r.Delivered())

	skipped := DispatchResult{ChannelChat: {Skipped: true}}
	assert.False(t, skipped.Attempted())
}
