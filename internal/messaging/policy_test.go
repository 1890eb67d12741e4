package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/swimdesk/lesson-notify/internal/domain"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name    string
		client  domain.Client
		channel domain.Channel
		want    bool
	}{
		{
			name:    "email with address",
			client:  domain.Client{Email: "p@example.com"},
			channel: domain.ChannelEmail,
			want:    true,
		},
		{
			name:    "email without address",
			client:  domain.Client{Phone: "+12125550101"},
			channel: domain.ChannelEmail,
			want:    false,
		},
		{
			name:    "email with malformed address",
			client:  domain.Client{Email: "not-an-email"},
			channel: domain.ChannelEmail,
			want:    false,
		},
		{
			name:    "email opted out",
			client:  domain.Client{Email: "p@example.com", EmailOptOut: true},
			channel: domain.ChannelEmail,
			want:    false,
		},
		{
			name:    "sms with phone",
			client:  domain.Client{Phone: "+12125550101"},
			channel: domain.ChannelSMS,
			want:    true,
		},
		{
			name:    "sms without phone",
			client:  domain.Client{Email: "p@example.com"},
			channel: domain.ChannelSMS,
			want:    false,
		},
		{
			name:    "sms opted out",
			client:  domain.Client{Phone: "+12125550101", SMSOptOut: true},
			channel: domain.ChannelSMS,
			want:    false,
		},
		{
			name:    "sms opt-out does not block email",
			client:  domain.Client{Email: "p@example.com", Phone: "+12125550101", SMSOptOut: true},
			channel: domain.ChannelEmail,
			want:    true,
		},
		{
			name:    "unknown channel",
			client:  domain.Client{Email: "p@example.com", Phone: "+12125550101"},
			channel: domain.Channel("fax"),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(&tt.client, tt.channel))
		})
	}
}
