// Package messaging implements the parent-notification core: batch
// creation with per-channel fan-out, the durable outbox, and the
// dispatch tick that turns pending entries into provider sends.
package messaging

import (
	"context"
	"time"

	"github.com/swimdesk/lesson-notify/internal/domain"
)

// Repository defines data access for batches and the outbox.
type Repository interface {
	// Batches
	CreateBatch(ctx context.Context, batch *domain.MessageBatch) error
	GetBatch(ctx context.Context, id string) (*domain.MessageBatch, error)
	ListBatches(ctx context.Context, limit, offset int) ([]domain.MessageBatch, error)
	DeleteBatch(ctx context.Context, id string) error
	SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus) error

	// Outbox entries
	CreateEntries(ctx context.Context, entries []*domain.OutboxEntry) error
	ListBatchEntries(ctx context.Context, batchID string) ([]domain.OutboxEntry, error)

	// ClaimDueEntries atomically selects up to limit rows with
	// status=pending, send_after<=now and retry_count<maxRetries, and
	// transitions them to processing. Claimed rows are invisible to
	// concurrent ticks.
	ClaimDueEntries(ctx context.Context, now time.Time, maxRetries, limit int) ([]*domain.OutboxEntry, error)

	// RequeueStuckEntries returns processing rows older than cutoff to
	// pending. Recovers rows orphaned by a crash mid-tick.
	RequeueStuckEntries(ctx context.Context, cutoff time.Time) (int64, error)

	// Entry transitions. Each targets a single claimed row; a row no
	// longer in processing yields ErrEntryNotClaimed.
	MarkEntrySent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkEntryRetry(ctx context.Context, id, lastError string, sendAfter time.Time) error
	MarkEntryFailed(ctx context.Context, id, lastError string) error

	// RecomputeBatchStatus derives the batch status from all of its
	// entries and persists it. Recomputed, never incremented.
	RecomputeBatchStatus(ctx context.Context, batchID string) (domain.BatchStatus, error)

	// OutboxStats returns entry counts by status for metrics.
	OutboxStats(ctx context.Context) (*OutboxStats, error)
}

// OutboxStats holds outbox entry counts by status.
type OutboxStats struct {
	Pending    int64
	Processing int64
	Sent       int64
	Failed     int64
}
