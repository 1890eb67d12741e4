// Package sms provides SMS sending via a Twilio-compatible REST API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/messaging"
)

const (
	defaultAPIBaseURL = "https://api.twilio.com"
	defaultTimeout    = 10 * time.Second

	// optOutFooter is appended to every outbound SMS, as carriers
	// require for application-to-person traffic.
	optOutFooter = "\n\nReply STOP to opt out"
)

// Config holds SMS sender configuration.
type Config struct {
	Enabled    bool
	APIBaseURL string
	AccountSID string
	AuthToken  string
	FromNumber string // E.164
	Timeout    time.Duration
}

// Sender implements the SMS provider adapter.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new SMS sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.AccountSID == "" || config.AuthToken == "" {
			return nil, errors.New("sms sender: account credentials are required when enabled")
		}
		if config.FromNumber == "" {
			return nil, errors.New("sms sender: from number is required when enabled")
		}
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("sms sender configured",
		"enabled", config.Enabled,
		"from_number", config.FromNumber,
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
	return domain.ChannelSMS
}

type messageResponse struct {
	SID string `json:"sid"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Send delivers one SMS with the opt-out footer appended and returns
// the provider-assigned message SID. Subject is ignored; SMS has no
// subject line.
func (s *Sender) Send(ctx context.Context, msg messaging.OutboundMessage) (string, error) {
	if !s.config.Enabled {
		slog.Warn("sms sender disabled, skipping send", "to", msg.To)
		return "", nil
	}

	body := msg.Body + optOutFooter
	messaging.RecordSMSSegments(Segments(body))

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", s.config.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		s.config.APIBaseURL, s.config.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &messaging.ProviderError{Provider: "sms", Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return "", &messaging.ProviderError{Provider: "sms", Code: resp.StatusCode, Message: message}
	}

	var result messageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	slog.Debug("sms sent",
		"to", msg.To,
		"segments", Segments(body),
		"provider_message_id", result.SID,
	)
	return result.SID, nil
}

// Segments returns how many GSM-7 segments a message body occupies:
// one segment up to 160 characters, then 153 characters per segment
// for concatenated messages.
func Segments(body string) int {
	length := len([]rune(body))
	switch {
	case length == 0:
		return 0
	case length <= 160:
		return 1
	default:
		return (length + 152) / 153
	}
}
