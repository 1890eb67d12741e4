package domain

import "time"

// Client is a guardian/dependent pair from the roster. Either contact
// channel may be absent; opt-out flags are tracked per channel.
type Client struct {
	ID          string    `json:"id"`
	ParentName  string    `json:"parent_name"`
	ChildName   string    `json:"child_name"`
	Email       string    `json:"email"` // empty when unknown or invalid at import time
	Phone       string    `json:"phone"` // E.164, empty when unknown or invalid at import time
	SMSOptOut   bool      `json:"sms_opt_out"`
	EmailOptOut bool      `json:"email_opt_out"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
