package domain

import "time"

// Lesson is a scheduled class referenced by message batches for
// template variables. Managed by an external collaborator.
type Lesson struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime string    `json:"start_time"` // "HH:MM", 24-hour
	CreatedAt time.Time `json:"created_at"`
}
