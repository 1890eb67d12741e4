package domain

import "time"

// Channel is a concrete delivery channel for a single outbox entry.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a known delivery channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// BatchChannel is the channel selector on a message batch. "both"
// expands into up to two outbox entries per client.
type BatchChannel string

const (
	BatchChannelEmail BatchChannel = "email"
	BatchChannelSMS   BatchChannel = "sms"
	BatchChannelBoth  BatchChannel = "both"
)

// Channels returns the concrete channels the selector expands to.
func (c BatchChannel) Channels() []Channel {
	switch c {
	case BatchChannelEmail:
		return []Channel{ChannelEmail}
	case BatchChannelSMS:
		return []Channel{ChannelSMS}
	case BatchChannelBoth:
		return []Channel{ChannelEmail, ChannelSMS}
	default:
		return nil
	}
}

// BatchStatus is the aggregate delivery status of a batch. It is
// derived from the batch's outbox entries, never tracked independently.
type BatchStatus string

const (
	BatchStatusPending BatchStatus = "pending"
	BatchStatusSending BatchStatus = "sending"
	BatchStatusSent    BatchStatus = "sent"
	BatchStatusPartial BatchStatus = "partial"
)

// MessageBatch is one composed message addressed to a recipient set.
type MessageBatch struct {
	ID        string       `json:"id"`
	LessonID  string       `json:"lesson_id,omitempty"` // optional, used for template variables
	Channel   BatchChannel `json:"channel"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Status    BatchStatus  `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// EntryStatus is the delivery status of a single outbox entry.
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "pending"
	// EntryStatusProcessing marks a row claimed by an in-flight
	// dispatch tick. Rows stuck here past the requeue threshold are
	// returned to pending.
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusSent       EntryStatus = "sent"
	EntryStatusFailed     EntryStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s EntryStatus) Terminal() bool {
	return s == EntryStatusSent || s == EntryStatusFailed
}

// OutboxEntry is one per-recipient, per-channel send intent with its
// own retry state. Exactly one of DestEmail/DestPhone is set,
// matching Channel.
type OutboxEntry struct {
	ID                string      `json:"id"`
	BatchID           string      `json:"batch_id"`
	ClientID          string      `json:"client_id"`
	Channel           Channel     `json:"channel"`
	DestEmail         string      `json:"dest_email,omitempty"`
	DestPhone         string      `json:"dest_phone,omitempty"`
	Status            EntryStatus `json:"status"`
	RetryCount        int         `json:"retry_count"`
	LastError         string      `json:"last_error,omitempty"`
	SendAfter         time.Time   `json:"send_after"`
	SentAt            *time.Time  `json:"sent_at"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Destination returns the address the entry's channel delivers to.
func (e *OutboxEntry) Destination() string {
	if e.Channel == ChannelSMS {
		return e.DestPhone
	}
	return e.DestEmail
}
