package dispatch

import (
	"context"
	"errors"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

var ErrChannelFailed = errors.New("channel delivery failed")

// Channel delivers one message to one recipient.
type Channel interface {
	Name() models.Channel
	Send(ctx context.Context, msg Message, r Recipient) (messageID string, err error)
}

// Message is the rendered alert. Text is the plain-text form of HTML.
type Message struct {
	Subject  string
	HTML     string
	Text     string
	Severity models.Severity
	Location models.MonitoredLocation
}

// Recipient is the delivery view of a user's settings.
type Recipient struct {
	UserID       string
	Email        string
	Phone        string
	EmailEnabled bool
	ChatEnabled  bool
	SMSEnabled   bool
}

func RecipientFromSettings(userID string, s models.AlertSettings) Recipient {
	r := Recipient{
		UserID:       userID,
		EmailEnabled: s.EmailEnabled,
		ChatEnabled:  s.ChatEnabled,
		SMSEnabled:   s.SMSEnabled,
	}
	if s.NotifyEmail != nil {
		r.Email = *s.NotifyEmail
	}
	if s.NotifyPhone != nil {
		r.Phone = *s.NotifyPhone
	}
	return r
}

func (r Recipient) Enabled(ch models.Channel) bool {
	switch ch {
	case models.ChannelEmail:
		return r.EmailEnabled
	case models.ChannelChat:
		return r.ChatEnabled
	case models.ChannelSMS:
		return r.SMSEnabled
	}
	return false
}

// SkipError marks a channel that was not attempted. It is not a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

func Skip(reason string) error {
	return &SkipError{Reason: reason}
}
