package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/resend/resend-go/v2"
)

// ErrDisabled is returned by a mailer without an API key.
var ErrDisabled = errors.New("RESEND_API_KEY not set")

type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
}

// SendError is a message rejected by the provider.
type SendError struct {
	Message string
}

func (e *SendError) Error() string {
	return "resend rejected message: " + e.Message
}

// ResendMailer sends email through the Resend API.
type ResendMailer struct {
	from   string
	client *resend.Client
}

// New returns a Resend mailer, or a disabled one when apiKey is empty.
func New(apiKey, from string) Mailer {
	if apiKey == "" {
		return Disabled{}
	}
	return &ResendMailer{
		from:   from,
		client: resend.NewCustomClient(&http.Client{Timeout: 15 * time.Second}, apiKey),
	}
}

// WithBaseURL points the mailer at another API base, used by tests.
func (m *ResendMailer) WithBaseURL(base string) (*ResendMailer, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("resend base url: %w", err)
	}
	m.client.BaseURL = u
	return m, nil
}

func (m *ResendMailer) Enabled() bool { return true }

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
	})
	if err != nil {
		var netErr *url.Error
		if errors.As(err, &netErr) {
			return fmt.Errorf("network or fetch error: %w", err)
		}
		logger.Error("Resend API error", map[string]interface{}{
			"error":   err.Error(),
			"subject": msg.Subject,
		})
		return &SendError{Message: strings.TrimPrefix(err.Error(), "[ERROR]: ")}
	}

	logger.Info("Email sent", map[string]interface{}{"subject": msg.Subject, "id": sent.Id})
	return nil
}

// Disabled reports every send as failed with ErrDisabled.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Send(ctx context.Context, msg Message) error {
	logger.Warn("Skipping email send", map[string]interface{}{"reason": ErrDisabled.Error(), "subject": msg.Subject})
	return ErrDisabled
}
