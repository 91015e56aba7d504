package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

// SMSTransport delivers a text message and returns the provider message id.
type SMSTransport interface {
	SendSMS(ctx context.Context, phoneNumber, text string) (string, error)
}

// EmailMessage is a rendered email.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// EmailTransport delivers an email and returns the provider message id.
type EmailTransport interface {
	SendEmail(ctx context.Context, msg EmailMessage) (string, error)
}

// ActivationTokenIssuer signs email activation tokens.
type ActivationTokenIssuer interface {
	GenerateActivationToken(memberID string, now time.Time, ttl time.Duration) (string, error)
}

// CooperativeInfo is embedded in every invitation.
type CooperativeInfo struct {
	Name         string
	ContactPhone string
}

// TemplateData carries per-member values for an invitation.
type TemplateData struct {
	MemberID          string
	DisplayName       string
	TemporaryPassword string
	ExpiresIn         time.Duration
}

// SendResult is the outcome of one adapter send.
type SendResult struct {
	Success          bool
	ChannelMessageID string
	ActivationToken  string
	Err              error
}

// Adapter formats and dispatches an invitation on one channel.
type Adapter interface {
	Send(ctx context.Context, target string, data TemplateData) SendResult
}

var errNoTarget = errors.New("no delivery target")

func failed(err error) SendResult {
	return SendResult{Success: false, Err: err}
}

func expiryNotice(d time.Duration) string {
	if d <= 0 {
		d = 24 * time.Hour
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

// SMSAdapter sends temporary credentials by text message.
type SMSAdapter struct {
	transport SMSTransport
	coop      CooperativeInfo
}

// NewSMSAdapter constructs the adapter.
func NewSMSAdapter(transport SMSTransport, coop CooperativeInfo) *SMSAdapter {
	return &SMSAdapter{transport: transport, coop: coop}
}

// RenderSMS builds the invitation text.
func RenderSMS(coop CooperativeInfo, data TemplateData) string {
	return fmt.Sprintf(
		"Hello %s, your %s account is ready. Temporary password: %s. It expires in %s. Questions? Call %s.",
		data.DisplayName, coop.Name, data.TemporaryPassword, expiryNotice(data.ExpiresIn), coop.ContactPhone,
	)
}

// Send dispatches the invitation to phoneNumber.
func (a *SMSAdapter) Send(ctx context.Context, phoneNumber string, data TemplateData) SendResult {
	if strings.TrimSpace(phoneNumber) == "" {
		return failed(errNoTarget)
	}
	msgID, err := a.transport.SendSMS(ctx, phoneNumber, RenderSMS(a.coop, data))
	if err != nil {
		return failed(err)
	}
	return SendResult{Success: true, ChannelMessageID: msgID}
}

// EmailAdapter sends activation links by email.
type EmailAdapter struct {
	transport     EmailTransport
	tokens        ActivationTokenIssuer
	coop          CooperativeInfo
	activationURL string
	tokenTTL      time.Duration
	now           func() time.Time
}

// EmailAdapterConfig configures the email adapter.
type EmailAdapterConfig struct {
	Cooperative   CooperativeInfo
	ActivationURL string
	TokenTTL      time.Duration
	Now           func() time.Time
}

// NewEmailAdapter constructs the adapter.
func NewEmailAdapter(transport EmailTransport, tokens ActivationTokenIssuer, cfg EmailAdapterConfig) *EmailAdapter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &EmailAdapter{
		transport:     transport,
		tokens:        tokens,
		coop:          cfg.Cooperative,
		activationURL: cfg.ActivationURL,
		tokenTTL:      cfg.TokenTTL,
		now:           cfg.Now,
	}
}

// ActivationLink appends the token to the base URL as a query parameter.
func ActivationLink(baseURL, token string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// RenderEmail builds the invitation email for a link.
func RenderEmail(coop CooperativeInfo, to string, data TemplateData, link string) EmailMessage {
	expiry := expiryNotice(data.ExpiresIn)
	text := fmt.Sprintf(
		"Hello %s,\n\nYour %s member account is ready. Activate it here:\n\n%s\n\nThis link expires in %s.\nQuestions? Call %s.\n",
		data.DisplayName, coop.Name, link, expiry, coop.ContactPhone,
	)

	var body strings.Builder
	_ = invitationHTML.Execute(&body, map[string]string{
		"Cooperative": coop.Name,
		"Name":        data.DisplayName,
		"Link":        link,
		"Expiry":      expiry,
		"Phone":       coop.ContactPhone,
	})
	return EmailMessage{
		To:      to,
		ToName:  data.DisplayName,
		Subject: fmt.Sprintf("Activate your %s account", coop.Name),
		HTML:    body.String(),
		Text:    text,
	}
}

// Names come from CSV cells, so the HTML part is rendered with contextual
// escaping.
var invitationHTML = template.Must(template.New("invitation").Parse(
	`<html><body><h2>Welcome to {{.Cooperative}}</h2><p>Hello {{.Name}},</p><p>Your member account is ready. <a href="{{.Link}}">Activate your account</a>.</p><p>This link expires in {{.Expiry}}.</p><p>Questions? Call {{.Phone}}.</p></body></html>`,
))

// Send issues an activation token and dispatches the invitation to address.
func (a *EmailAdapter) Send(ctx context.Context, address string, data TemplateData) SendResult {
	if strings.TrimSpace(address) == "" {
		return failed(errNoTarget)
	}
	token, err := a.tokens.GenerateActivationToken(data.MemberID, a.now(), a.tokenTTL)
	if err != nil {
		return failed(fmt.Errorf("issue activation token: %w", err))
	}
	if data.ExpiresIn <= 0 {
		data.ExpiresIn = a.tokenTTL
	}

	msg := RenderEmail(a.coop, address, data, ActivationLink(a.activationURL, token))
	msgID, err := a.transport.SendEmail(ctx, msg)
	if err != nil {
		return failed(err)
	}
	return SendResult{Success: true, ChannelMessageID: msgID, ActivationToken: token}
}
