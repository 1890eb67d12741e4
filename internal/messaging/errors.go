package messaging

import "errors"

// Repository and service errors.
var (
	ErrBatchNotFound = errors.New("message batch not found")
	ErrEntryNotFound = errors.New("outbox entry not found")

	// ErrNoEligibleRecipients is returned when batch creation fans out
	// to zero outbox entries. The batch record is rolled back before
	// this is surfaced, so no orphan batch remains.
	ErrNoEligibleRecipients = errors.New("no eligible recipients for batch")

	// ErrEntryNotClaimed is returned when a status transition targets a
	// row that is no longer in the expected claimed state, e.g. after a
	// concurrent tick won the row.
	ErrEntryNotClaimed = errors.New("outbox entry not claimed by this tick")
)
