package messaging

import (
	"context"
	"fmt"

	"github.com/swimdesk/lesson-notify/internal/domain"
)

// OutboundMessage is rendered content bound for a single destination.
// To holds an email address or an E.164 phone number depending on the
// sender's channel.
type OutboundMessage struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered messages over one provider transport.
// Implementations wrap transport-level decoration (HTML shell,
// opt-out footer) and return the provider-assigned message id.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, msg OutboundMessage) (providerMessageID string, err error)
}

// ProviderError is a send failure reported by a provider adapter. The
// dispatcher treats it as opaque beyond the message: every provider
// failure goes through the same retry schedule.
type ProviderError struct {
	Provider string
	Code     int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}
