package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchChannel_Channels(t *testing.T) {
	assert.Equal(t, []Channel{ChannelEmail}, BatchChannelEmail.Channels())
	assert.Equal(t, []Channel{ChannelSMS}, BatchChannelSMS.Channels())
	assert.Equal(t, []Channel{ChannelEmail, ChannelSMS}, BatchChannelBoth.Channels())
	assert.Nil(t, BatchChannel("fax").Channels())
}

func TestEntryStatus_Terminal(t *testing.T) {
	assert.False(t, EntryStatusPending.Terminal())
	assert.False(t, EntryStatusProcessing.Terminal())
	assert.True(t, EntryStatusSent.Terminal())
	assert.True(t, EntryStatusFailed.Terminal())
}

func TestOutboxEntry_Destination(t *testing.T) {
	email := OutboxEntry{Channel: ChannelEmail, DestEmail: "p@example.com"}
	assert.Equal(t, "p@example.com", email.Destination())

	sms := OutboxEntry{Channel: ChannelSMS, DestPhone: "+12125550101"}
	assert.Equal(t, "+12125550101", sms.Destination())
}
