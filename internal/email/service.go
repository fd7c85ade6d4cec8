package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/willemschots/webauth/internal/krypto"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

const (
	TemplateVerifyEmail   = "verify-email"
	TemplatePasswordReset = "password-reset"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, sender, recipient Address, subject, body string) error
}

// Config configures the Service.
type Config struct {
	From Address
	// VerifyURL and ResetURL are the links put in the emails, the token
	// is added as the "token" query parameter.
	VerifyURL *url.URL
	ResetURL  *url.URL
	// ResetExpiry is mentioned in the password reset email.
	ResetExpiry time.Duration
}

// Service provides the main functionality for sending emails.
type Service struct {
	renderer Renderer
	sender   Sender
	cfg      Config
}

func NewService(renderer Renderer, sender Sender, cfg Config) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		cfg:      cfg,
	}
}

type linkData struct {
	Link   string
	Expiry string
}

// SendVerificationEmail sends the email verification link to recipient.
func (s *Service) SendVerificationEmail(ctx context.Context, recipient Address, tok krypto.Token) error {
	return s.SendMessage(ctx, TemplateVerifyEmail, recipient, linkData{
		Link: withToken(s.cfg.VerifyURL, tok),
	})
}

// SendPasswordResetEmail sends the password reset link to recipient.
func (s *Service) SendPasswordResetEmail(ctx context.Context, recipient Address, tok krypto.Token) error {
	return s.SendMessage(ctx, TemplatePasswordReset, recipient, linkData{
		Link:   withToken(s.cfg.ResetURL, tok),
		Expiry: humanDuration(s.cfg.ResetExpiry),
	})
}

// SendMessage renders the named template with data and sends the result to recipient.
func (s *Service) SendMessage(ctx context.Context, name string, recipient Address, data any) error {
	var subject, body bytes.Buffer

	err := s.renderer.Render(&subject, name, ElementSubject, data)
	if err != nil {
		return fmt.Errorf("failed to render subject of %s: %w", name, err)
	}

	err = s.renderer.Render(&body, name, ElementBody, data)
	if err != nil {
		return fmt.Errorf("failed to render body of %s: %w", name, err)
	}

	err = s.sender.Send(ctx, s.cfg.From, recipient, strings.TrimSpace(subject.String()), body.String())
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}

	return nil
}

func withToken(base *url.URL, tok krypto.Token) string {
	u := *base
	q := u.Query()
	q.Set("token", tok.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// humanDuration formats whole hours and minutes the way people write them.
func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	switch {
	case d > 0 && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d > 0 && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}
