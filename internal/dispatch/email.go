package dispatch

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const charset = "UTF-8"

type sesAPI interface {
	SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error)
}

// EmailChannel sends HTML mail with a plain-text alternative through SES.
type EmailChannel struct {
	client sesAPI
	from   string
}

func NewEmailChannel(region, from string) *EmailChannel {
	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
	}))
	return &EmailChannel{client: ses.New(sess), from: from}
}

func (c *EmailChannel) Name() models.Channel {
	return models.ChannelEmail
}

func (c *EmailChannel) Send(ctx context.Context, msg Message, r Recipient) (string, error) {
	if r.Email == "" {
		return "", Skip("no email address")
	}

	out, err := c.client.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source: aws.String(c.from),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(r.Email)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charset), Data: aws.String(msg.Subject)},
			Body: &ses.Body{
				Html: &ses.Content{Charset: aws.String(charset), Data: aws.String(msg.HTML)},
				Text: &ses.Content{Charset: aws.String(charset), Data: aws.String(msg.Text)},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return aws.StringValue(out.MessageId), nil
}
