package models

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
)

// ChannelOutcome is the result of one delivery channel. Skipped is distinct
// from a failure: the channel was never attempted.
type ChannelOutcome struct {
	Attempted     bool   `json:"attempted"`
	Success       bool   `json:"success"`
	Skipped       bool   `json:"skipped,omitempty"`
	SkippedReason string `json:"skippedReason,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	MessageID     string `json:"messageId,omitempty"`
	ElapsedMs     int64  `json:"elapsedMs"`
}

type DispatchResult map[Channel]ChannelOutcome

// Attempted reports whether at least one channel was attempted.
func (r DispatchResult) Attempted() bool {
	for _, o := range r {
		if o.Attempted {
			return true
		}
	}
	return false
}

// Delivered reports whether at least one channel succeeded.
func (r DispatchResult) Delivered() bool {
	for _, o := range r {
		if o.Success {
			return true
		}
	}
	return false
}

type AlertEvent struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	LocationID   string             `json:"locationId"`
	LocationName string             `json:"locationName"`
	Severity     Severity           `json:"severity"`
	Subject      string             `json:"subject"`
	Body         string             `json:"body"`
	Generated    bool               `json:"generated"`
	Observations []ObservationMatch `json:"observations"`
	Dispatch     DispatchResult     `json:"dispatch"`
	CreatedAt    time.Time          `json:"createdAt"`
}
