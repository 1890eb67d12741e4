package messaging

import (
	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/pkg/contact"
)

// Eligible reports whether a client may receive a message on the given
// channel: usable contact info on file and no opt-out for that channel.
// Pure predicate; evaluated at batch-creation time only. An opt-out
// taken after fan-out does not cancel already-queued entries.
func Eligible(client *domain.Client, channel domain.Channel) bool {
	switch channel {
	case domain.ChannelEmail:
		return contact.ValidEmail(client.Email) && !client.EmailOptOut
	case domain.ChannelSMS:
		return client.Phone != "" && !client.SMSOptOut
	default:
		return false
	}
}
