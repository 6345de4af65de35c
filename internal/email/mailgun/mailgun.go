package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/krypto"
)

// Settings contains the settings for the Mailgun API.
type Settings struct {
	// BaseURL is the API base, e.g. https://api.eu.mailgun.net.
	BaseURL  *url.URL
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

type formField struct {
	name  string
	value string
}

// Send sends an email using the Mailgun API.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	// Below we send a POST request to the Mailgun API to send an email. We don't use the Go mailgun package,
	// because it brings in a lot of dependencies that we don't need.

	fields := []formField{
		{"from", string(msg.From)},
		{"to", string(msg.To)},
	}
	for _, a := range msg.CC {
		fields = append(fields, formField{"cc", string(a)})
	}
	fields = append(fields, formField{"subject", msg.Subject})
	if msg.TextBody != "" {
		fields = append(fields, formField{"text", msg.TextBody})
	}
	if msg.HTMLBody != "" {
		fields = append(fields, formField{"html", msg.HTMLBody})
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		err := w.WriteField(f.name, f.value)
		if err != nil {
			return err
		}
	}

	err := w.Close()
	if err != nil {
		return err
	}

	reqURL := s.settings.BaseURL.JoinPath("v3", s.settings.Domain, "messages")
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

	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request did not succeed %d: %v", resp.StatusCode, string(resBody))
	}

	return nil
}
