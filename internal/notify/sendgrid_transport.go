package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridClient is the subset of the SendGrid client used here.
type SendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridTransport delivers email through the SendGrid v3 API.
type SendGridTransport struct {
	client    SendGridClient
	fromEmail string
	fromName  string
}

// NewSendGridTransport builds a transport backed by the real API client.
func NewSendGridTransport(apiKey, fromEmail, fromName string) *SendGridTransport {
	return NewSendGridTransportWithClient(sendgrid.NewSendClient(apiKey), fromEmail, fromName)
}

// NewSendGridTransportWithClient allows injecting a client.
func NewSendGridTransportWithClient(client SendGridClient, fromEmail, fromName string) *SendGridTransport {
	return &SendGridTransport{client: client, fromEmail: fromEmail, fromName: fromName}
}

// SendEmail sends msg and returns the X-Message-Id header.
func (t *SendGridTransport) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	from := mail.NewEmail(t.fromName, t.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	response, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
