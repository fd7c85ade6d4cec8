package mailgun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/krypto"
)

// ErrAPI is returned when the Mailgun API refuses an email.
var ErrAPI = errors.New("mailgun api error")

// DefaultAPIURL is the base url of the Mailgun API in the US region.
const DefaultAPIURL = "https://api.mailgun.net"

// Settings contains the settings for the Mailgun API.
type Settings struct {
	APIURL   *url.URL
	Domain   string
	Username string
	Password krypto.Secret
}

// Sender is an email sender that sends emails using the Mailgun API.
type Sender struct {
	client   *http.Client
	settings Settings
}

// NewSender creates a new sender.
func NewSender(client *http.Client, s Settings) *Sender {
	return &Sender{
		client:   client,
		settings: s,
	}
}

// Send sends an email using the Mailgun API.
func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, body string) error {
	// Below we send a POST request to the Mailgun API to send an email. We don't use the Go mailgun package,
	// because it brings in a lot of dependencies that we don't need.
	fields := []struct {
		name  string
		value string
	}{
		{"from", string(from)},
		{"to", string(recipient)},
		{"subject", subject},
		{"text", body},
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		err := w.WriteField(f.name, f.value)
		if err != nil {
			return fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	err := w.Close()
	if err != nil {
		return err
	}

	reqURL := s.settings.APIURL.JoinPath("v3", s.settings.Domain, "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth(s.settings.Username, string(s.settings.Password.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status code %d: %s", ErrAPI, resp.StatusCode, string(resBody))
	}

	return nil
}
