package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/swimdesk/lesson-notify/internal/domain"
	"golang.org/x/time/rate"
)

// DispatcherConfig contains dispatch tick configuration.
type DispatcherConfig struct {
	// BatchSize bounds how many due entries one tick claims.
	BatchSize int
	// MaxRetries is the total number of send attempts per entry.
	MaxRetries int
	// RetryDelays is the fixed backoff schedule indexed by the number
	// of failures already recorded. The last element repeats.
	RetryDelays []time.Duration
	// Concurrency bounds in-tick parallel sends.
	Concurrency int
	// SendRate caps provider calls per second across the tick.
	SendRate float64
	// StuckAfter is how long a processing row may sit before a tick
	// returns it to pending.
	StuckAfter time.Duration
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:   100,
		MaxRetries:  3,
		RetryDelays: []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
		Concurrency: 5,
		SendRate:    10,
		StuckAfter:  10 * time.Minute,
	}
}

// TickSummary reports what one tick did. Counts cover this tick only.
// Failed counts every failed attempt, including ones that merely
// scheduled a retry.
type TickSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Dispatcher drains due outbox entries into provider sends. It runs
// one bounded unit of work per RunTick call; there is no resident
// worker, and retry timing lives entirely in the stored send_after.
type Dispatcher struct {
	config  DispatcherConfig
	repo    Repository
	clients ClientSource
	lessons LessonSource
	senders map[domain.Channel]Sender
	limiter *rate.Limiter

	now func() time.Time
}

// NewDispatcher creates a dispatcher with the given provider senders.
func NewDispatcher(config DispatcherConfig, repo Repository, clients ClientSource, lessons LessonSource, senders ...Sender) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if len(config.RetryDelays) == 0 {
		config.RetryDelays = DefaultDispatcherConfig().RetryDelays
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.StuckAfter <= 0 {
		config.StuckAfter = 10 * time.Minute
	}

	limit := rate.Inf
	if config.SendRate > 0 {
		limit = rate.Limit(config.SendRate)
	}

	senderMap := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		senderMap[s.Channel()] = s
	}

	return &Dispatcher{
		config:  config,
		repo:    repo,
		clients: clients,
		lessons: lessons,
		senders: senderMap,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// RunTick processes one bounded batch of due entries to completion:
// claim, render, send, record outcome, then recompute the status of
// every batch touched. A failure on one entry never aborts the rest.
func (d *Dispatcher) RunTick(ctx context.Context) (TickSummary, error) {
	var summary TickSummary

	now := d.now()

	requeued, err := d.repo.RequeueStuckEntries(ctx, now.Add(-d.config.StuckAfter))
	if err != nil {
		return summary, fmt.Errorf("requeue stuck entries: %w", err)
	}
	if requeued > 0 {
		slog.Warn("requeued stuck outbox entries", "count", requeued)
	}

	entries, err := d.repo.ClaimDueEntries(ctx, now, d.config.MaxRetries, d.config.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("claim due entries: %w", err)
	}
	if len(entries) == 0 {
		return summary, nil
	}

	recordClaimed(len(entries))
	slog.Debug("dispatch tick claimed entries", "count", len(entries))

	batches := d.resolveBatches(ctx, entries)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		sem  = make(chan struct{}, d.config.Concurrency)
		seen = make(map[string]struct{})
	)

	for _, entry := range entries {
		seen[entry.BatchID] = struct{}{}

		wg.Add(1)
		sem <- struct{}{}
		go func(entry *domain.OutboxEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			sent := d.processEntry(ctx, entry, batches[entry.BatchID])

			mu.Lock()
			summary.Processed++
			if sent {
				summary.Sent++
			} else {
				summary.Failed++
			}
			mu.Unlock()
		}(entry)
	}
	wg.Wait()

	for batchID := range seen {
		if _, err := d.repo.RecomputeBatchStatus(ctx, batchID); err != nil {
			slog.Error("failed to recompute batch status", "batch_id", batchID, "error", err)
		}
	}

	slog.Info("dispatch tick complete",
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)

	return summary, nil
}

// resolveBatches loads the distinct batches referenced by the claimed
// entries once, before the parallel send loop.
func (d *Dispatcher) resolveBatches(ctx context.Context, entries []*domain.OutboxEntry) map[string]*domain.MessageBatch {
	batches := make(map[string]*domain.MessageBatch)
	for _, entry := range entries {
		if _, ok := batches[entry.BatchID]; ok {
			continue
		}
		batch, err := d.repo.GetBatch(ctx, entry.BatchID)
		if err != nil {
			slog.Error("failed to load batch", "batch_id", entry.BatchID, "error", err)
			continue
		}
		batches[entry.BatchID] = batch
	}
	return batches
}

// processEntry attempts one send and records the outcome. Returns true
// when the entry reached sent.
func (d *Dispatcher) processEntry(ctx context.Context, entry *domain.OutboxEntry, batch *domain.MessageBatch) bool {
	if batch == nil {
		d.recordFailure(ctx, entry, fmt.Errorf("batch %s not found", entry.BatchID))
		return false
	}

	client, err := d.clients.GetClientByID(ctx, entry.ClientID)
	if err != nil {
		d.recordFailure(ctx, entry, fmt.Errorf("client lookup: %w", err))
		return false
	}

	// Lesson lookup is best-effort: a missing lesson renders its
	// variables as empty strings rather than failing the entry.
	var lesson *domain.Lesson
	if batch.LessonID != "" {
		lesson, err = d.lessons.GetLessonByID(ctx, batch.LessonID)
		if err != nil {
			slog.Debug("lesson lookup failed, rendering without lesson variables",
				"lesson_id", batch.LessonID, "error", err)
			lesson = nil
		}
	}

	vars := RecipientVariables(client, lesson, d.now())
	subject := Render(batch.Subject, vars)
	body := Render(batch.Body, vars)

	sender, ok := d.senders[entry.Channel]
	if !ok {
		d.recordFailure(ctx, entry, fmt.Errorf("no sender configured for channel %s", entry.Channel))
		return false
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.recordFailure(ctx, entry, fmt.Errorf("rate limiter: %w", err))
		return false
	}

	start := d.now()
	providerID, err := sender.Send(ctx, OutboundMessage{
		To:      entry.Destination(),
		Subject: subject,
		Body:    body,
	})
	recordSendDuration(string(entry.Channel), time.Since(start))

	if err != nil {
		d.recordFailure(ctx, entry, err)
		return false
	}

	if err := d.repo.MarkEntrySent(ctx, entry.ID, providerID, d.now()); err != nil {
		slog.Error("failed to mark entry sent", "entry_id", entry.ID, "error", err)
		recordDispatchOutcome(string(entry.Channel), "sent_unrecorded")
		return false
	}

	recordDispatchOutcome(string(entry.Channel), "sent")
	slog.Debug("entry sent",
		"entry_id", entry.ID,
		"channel", entry.Channel,
		"provider_message_id", providerID,
	)
	return true
}

// recordFailure applies the retry schedule: the new retry count is
// entry.RetryCount+1; reaching MaxRetries makes the entry terminal with
// send_after frozen, otherwise the entry stays pending with send_after
// pushed out by the fixed backoff for this attempt.
func (d *Dispatcher) recordFailure(ctx context.Context, entry *domain.OutboxEntry, sendErr error) {
	newCount := entry.RetryCount + 1

	slog.Warn("send failed",
		"entry_id", entry.ID,
		"channel", entry.Channel,
		"attempt", newCount,
		"max_retries", d.config.MaxRetries,
		"error", sendErr,
	)

	if newCount >= d.config.MaxRetries {
		if err := d.repo.MarkEntryFailed(ctx, entry.ID, sendErr.Error()); err != nil {
			slog.Error("failed to mark entry failed", "entry_id", entry.ID, "error", err)
		}
		recordDispatchOutcome(string(entry.Channel), "failed")
		return
	}

	sendAfter := d.now().Add(d.backoff(entry.RetryCount))
	if err := d.repo.MarkEntryRetry(ctx, entry.ID, sendErr.Error(), sendAfter); err != nil {
		slog.Error("failed to mark entry for retry", "entry_id", entry.ID, "error", err)
	}
	recordDispatchOutcome(string(entry.Channel), "retry")

	slog.Info("entry scheduled for retry",
		"entry_id", entry.ID,
		"retry_count", newCount,
		"send_after", sendAfter,
	)
}

// backoff returns the delay for a failure given how many failures the
// entry had before this attempt.
func (d *Dispatcher) backoff(priorFailures int) time.Duration {
	if priorFailures >= len(d.config.RetryDelays) {
		return d.config.RetryDelays[len(d.config.RetryDelays)-1]
	}
	return d.config.RetryDelays[priorFailures]
}
