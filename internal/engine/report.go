package engine

import (
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

type Outcome string

const (
	OutcomeNoMatch  Outcome = "no_match"
	OutcomeAlerted  Outcome = "alerted"
	OutcomeCooldown Outcome = "cooldown"
	OutcomeFailed   Outcome = "failed"
)

type LocationReport struct {
	LocationID   string                `json:"locationId"`
	LocationName string                `json:"locationName"`
	Status       models.Severity       `json:"status"`
	Outcome      Outcome               `json:"outcome"`
	Matched      int                   `json:"matched"`
	AlertID      string                `json:"alertId,omitempty"`
	Generated    bool                  `json:"generated,omitempty"`
	Dispatch     models.DispatchResult `json:"dispatch,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// CycleReport summarizes one evaluation of a user's locations.
type CycleReport struct {
	UserID       string           `json:"userId"`
	Trigger      Trigger          `json:"trigger"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
	Observations int              `json:"observations"`
	Locations    []LocationReport `json:"locations"`
}

// Alerts counts the locations that produced an alert event.
func (r CycleReport) Alerts() int {
	n := 0
	for _, l := range r.Locations {
		if l.Outcome == OutcomeAlerted {
			n++
		}
	}
	return n
}

// Delivered reports whether any alert reached at least one channel.
func (r CycleReport) Delivered() bool {
	for _, l := range r.Locations {
		if l.Outcome == OutcomeAlerted && l.Dispatch.Delivered() {
			return true
		}
	}
	return false
}
