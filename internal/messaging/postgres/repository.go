// Package postgres provides the PostgreSQL implementation of the
// messaging repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/messaging"
)

// Repository implements messaging.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateBatch inserts a new message batch.
func (r *Repository) CreateBatch(ctx context.Context, batch *domain.MessageBatch) error {
	query := `
		INSERT INTO message_batches (id, lesson_id, channel, subject, body, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		batch.ID,
		batch.LessonID,
		batch.Channel,
		batch.Subject,
		batch.Body,
		batch.Status,
	).Scan(&batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a message batch by ID.
func (r *Repository) GetBatch(ctx context.Context, id string) (*domain.MessageBatch, error) {
	query := `
		SELECT id, COALESCE(lesson_id::text, ''), channel, subject, body, status, created_at
		FROM message_batches
		WHERE id = $1
	`
	var batch domain.MessageBatch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&batch.ID,
		&batch.LessonID,
		&batch.Channel,
		&batch.Subject,
		&batch.Body,
		&batch.Status,
		&batch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messaging.ErrBatchNotFound
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &batch, nil
}

// ListBatches returns batches ordered most recent first.
func (r *Repository) ListBatches(ctx context.Context, limit, offset int) ([]domain.MessageBatch, error) {
	query := `
		SELECT id, COALESCE(lesson_id::text, ''), channel, subject, body, status, created_at
		FROM message_batches
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	batches := make([]domain.MessageBatch, 0)
	for rows.Next() {
		var batch domain.MessageBatch
		err := rows.Scan(
			&batch.ID,
			&batch.LessonID,
			&batch.Channel,
			&batch.Subject,
			&batch.Body,
			&batch.Status,
			&batch.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, batch)
	}

	return batches, rows.Err()
}

// DeleteBatch removes a batch. Outbox entries cascade.
func (r *Repository) DeleteBatch(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM message_batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrBatchNotFound
	}
	return nil
}

// SetBatchStatus updates a batch's status.
func (r *Repository) SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE message_batches SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set batch status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrBatchNotFound
	}
	return nil
}

// CreateEntries inserts outbox entries in one batched round trip.
func (r *Repository) CreateEntries(ctx context.Context, entries []*domain.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO message_outbox
			(id, batch_id, client_id, channel, dest_email, dest_phone, status, send_after)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
	`
	for _, e := range entries {
		batch.Queue(query,
			e.ID,
			e.BatchID,
			e.ClientID,
			e.Channel,
			e.DestEmail,
			e.DestPhone,
			e.Status,
			e.SendAfter,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}

	return nil
}

const entryColumns = `
	id, batch_id, client_id, channel,
	COALESCE(dest_email, ''), COALESCE(dest_phone, ''),
	status, retry_count, last_error, send_after, sent_at,
	COALESCE(provider_message_id, ''), created_at, updated_at
`

func scanEntry(row pgx.Row) (*domain.OutboxEntry, error) {
	var e domain.OutboxEntry
	err := row.Scan(
		&e.ID,
		&e.BatchID,
		&e.ClientID,
		&e.Channel,
		&e.DestEmail,
		&e.DestPhone,
		&e.Status,
		&e.RetryCount,
		&e.LastError,
		&e.SendAfter,
		&e.SentAt,
		&e.ProviderMessageID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListBatchEntries returns all outbox entries of a batch.
func (r *Repository) ListBatchEntries(ctx context.Context, batchID string) ([]domain.OutboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM message_outbox WHERE batch_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.OutboxEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

// ClaimDueEntries selects due pending rows with SKIP LOCKED and flips
// them to processing in the same statement, so an overlapping tick
// cannot double-claim a row.
func (r *Repository) ClaimDueEntries(ctx context.Context, now time.Time, maxRetries, limit int) ([]*domain.OutboxEntry, error) {
	query := `
		WITH due AS (
			SELECT id FROM message_outbox
			WHERE status = 'pending' AND send_after <= $1 AND retry_count < $2
			ORDER BY send_after
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE message_outbox o
		SET status = 'processing', updated_at = NOW()
		FROM due
		WHERE o.id = due.id
		RETURNING ` + entryColumnsQualified

	rows, err := r.db.Query(ctx, query, now, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.OutboxEntry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

const entryColumnsQualified = `
	o.id, o.batch_id, o.client_id, o.channel,
	COALESCE(o.dest_email, ''), COALESCE(o.dest_phone, ''),
	o.status, o.retry_count, o.last_error, o.send_after, o.sent_at,
	COALESCE(o.provider_message_id, ''), o.created_at, o.updated_at
`

// RequeueStuckEntries returns processing rows older than cutoff to
// pending.
func (r *Repository) RequeueStuckEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE message_outbox
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at <= $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stuck entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkEntrySent records a successful send. Sent rows are immutable
// afterwards; the processing guard keeps a lost race from overwriting
// another tick's result.
func (r *Repository) MarkEntrySent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE message_outbox
		SET status = 'sent',
		    provider_message_id = NULLIF($2, ''),
		    sent_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, providerMessageID, sentAt)
	if err != nil {
		return fmt.Errorf("mark entry sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrEntryNotClaimed
	}
	return nil
}

// MarkEntryRetry records a failed attempt that will be retried:
// retry_count goes up by one and send_after moves out to the backoff
// deadline.
func (r *Repository) MarkEntryRetry(ctx context.Context, id, lastError string, sendAfter time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE message_outbox
		SET status = 'pending',
		    retry_count = retry_count + 1,
		    last_error = $2,
		    send_after = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, lastError, sendAfter)
	if err != nil {
		return fmt.Errorf("mark entry retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrEntryNotClaimed
	}
	return nil
}

// MarkEntryFailed records a terminally failed attempt: retry_count
// still goes up by one, send_after is left frozen at its prior value.
func (r *Repository) MarkEntryFailed(ctx context.Context, id, lastError string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE message_outbox
		SET status = 'failed',
		    retry_count = retry_count + 1,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark entry failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrEntryNotClaimed
	}
	return nil
}

// RecomputeBatchStatus derives the batch status from all of its
// entries in one pass and persists it when the derivation advances the
// batch to a quiescent value.
func (r *Repository) RecomputeBatchStatus(ctx context.Context, batchID string) (domain.BatchStatus, error) {
	var total, sent, terminal int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status IN ('sent', 'failed'))
		FROM message_outbox
		WHERE batch_id = $1
	`, batchID).Scan(&total, &sent, &terminal)
	if err != nil {
		return "", fmt.Errorf("count batch entries: %w", err)
	}

	var status domain.BatchStatus
	switch {
	case total > 0 && sent == total:
		status = domain.BatchStatusSent
	case total > 0 && terminal == total:
		status = domain.BatchStatusPartial
	default:
		// Entries still in flight: leave the stored status alone.
		batch, err := r.GetBatch(ctx, batchID)
		if err != nil {
			return "", err
		}
		return batch.Status, nil
	}

	if err := r.SetBatchStatus(ctx, batchID, status); err != nil {
		return "", err
	}
	return status, nil
}

// OutboxStats returns outbox entry counts by status.
func (r *Repository) OutboxStats(ctx context.Context) (*messaging.OutboxStats, error) {
	var stats messaging.OutboxStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'processing'),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM message_outbox
	`).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return &stats, nil
}
