// Package email provides email sending via a transactional email
// provider's REST API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/messaging"
)

const (
	defaultAPIBaseURL = "https://api.resend.com"
	defaultTimeout    = 10 * time.Second
)

// Config holds email sender configuration.
type Config struct {
	Enabled     bool
	APIBaseURL  string
	APIKey      string
	FromAddress string // "Org Name <notifications@example.com>"
	OrgName     string // heading of the HTML shell
	BrandColor  string // header background, e.g. "#F6871F"
	Timeout     time.Duration
}

// Sender implements the email provider adapter.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.APIKey == "" {
			return nil, errors.New("email sender: API key is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.OrgName == "" {
		config.OrgName = "Lesson Notifications"
	}
	if config.BrandColor == "" {
		config.BrandColor = "#F6871F"
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"from_address", config.FromAddress,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Channel returns the delivery channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelEmail
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Send delivers one email wrapped in the organizational HTML shell and
// returns the provider-assigned message id.
func (s *Sender) Send(ctx context.Context, msg messaging.OutboundMessage) (string, error) {
	if !s.config.Enabled {
		slog.Warn("email sender disabled, skipping send", "to", msg.To)
		return "", nil
	}

	payload, err := json.Marshal(sendRequest{
		From:    s.config.FromAddress,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    s.wrapBody(msg.Body),
	})
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &messaging.ProviderError{Provider: "email", Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return "", &messaging.ProviderError{Provider: "email", Code: resp.StatusCode, Message: message}
	}

	var result sendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	slog.Debug("email sent", "to", msg.To, "provider_message_id", result.ID)
	return result.ID, nil
}

// wrapBody renders plain text into the fixed organizational HTML
// shell: branded header, white content card, and a footer explaining
// why the recipient is receiving the email.
func (s *Sender) wrapBody(body string) string {
	escaped := html.EscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")

	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	b.WriteString(fmt.Sprintf(`<div style="background-color: %s; padding: 20px; text-align: center;">`, s.config.BrandColor))
	b.WriteString(fmt.Sprintf(`<h1 style="color: white; margin: 0;">%s</h1>`, html.EscapeString(s.config.OrgName)))
	b.WriteString(`</div>`)
	b.WriteString(`<div style="padding: 20px; background-color: #f9f9f9;">`)
	b.WriteString(`<div style="background-color: white; padding: 20px; border-radius: 8px;">`)
	b.WriteString(escaped)
	b.WriteString(`</div>`)
	b.WriteString(`<div style="margin-top: 20px; padding: 15px; background-color: #e8e8e8; border-radius: 8px; font-size: 12px; color: #666;">`)
	b.WriteString(`<p style="margin: 0;">You're receiving this email because you're enrolled in our lesson program.</p>`)
	b.WriteString(`<p style="margin: 5px 0 0 0;">If you wish to stop receiving emails, please contact us directly.</p>`)
	b.WriteString(`</div></div></div>`)
	return b.String()
}
