package dispatch

import (
	"context"
	"net/url"

	twilio "github.com/kevinburke/twilio-go"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const maxSMSBody = 320

type smsAPI interface {
	SendMessage(from, to, body string, mediaURLs []*url.URL) (*twilio.Message, error)
}

// SMSChannel texts the alert subject through Twilio.
type SMSChannel struct {
	messages smsAPI
	from     string
}

func NewSMSChannel(sid, token, from string) *SMSChannel {
	client := twilio.NewClient(sid, token, nil)
	return &SMSChannel{messages: client.Messages, from: from}
}

func (c *SMSChannel) Name() models.Channel {
	return models.ChannelSMS
}

func (c *SMSChannel) Send(ctx context.Context, msg Message, r Recipient) (string, error) {
	if r.Phone == "" {
		return "", Skip("no phone number")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body := msg.Subject
	if runes := []rune(body); len(runes) > maxSMSBody {
		body = string(runes[:maxSMSBody])
	}

	sent, err := c.messages.SendMessage(c.from, r.Phone, body, nil)
	if err != nil {
		return "", err
	}
	return sent.Sid, nil
}
