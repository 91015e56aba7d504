package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// MailDialer is satisfied by *gomail.Dialer.
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport delivers email over SMTP.
type SMTPTransport struct {
	dialer MailDialer
	from   string
	domain string
}

// NewSMTPTransport builds a transport for the given server.
func NewSMTPTransport(host string, port int, username, password, from, messageIDDomain string) *SMTPTransport {
	return NewSMTPTransportWithDialer(gomail.NewDialer(host, port, username, password), from, messageIDDomain)
}

// NewSMTPTransportWithDialer allows injecting a dialer.
func NewSMTPTransportWithDialer(dialer MailDialer, from, messageIDDomain string) *SMTPTransport {
	if messageIDDomain == "" {
		messageIDDomain = "localhost"
	}
	return &SMTPTransport{dialer: dialer, from: from, domain: messageIDDomain}
}

// SendEmail renders a multipart message and sends it.
func (t *SMTPTransport) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), t.domain)

	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := t.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return id, nil
}
