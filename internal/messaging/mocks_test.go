package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/swimdesk/lesson-notify/internal/domain"
)

// mockRepository is an in-memory Repository with the same transition
// semantics as the SQL implementation.
type mockRepository struct {
	mu        sync.Mutex
	batches   map[string]*domain.MessageBatch
	entries   map[string]*domain.OutboxEntry
	claimedAt map[string]time.Time

	deletedBatches []string
	recomputed     []string

	createEntriesErr error
	claimErr         error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		batches:   make(map[string]*domain.MessageBatch),
		entries:   make(map[string]*domain.OutboxEntry),
		claimedAt: make(map[string]time.Time),
	}
}

func (m *mockRepository) CreateBatch(_ context.Context, batch *domain.MessageBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *batch
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.batches[batch.ID] = &copied
	return nil
}

func (m *mockRepository) GetBatch(_ context.Context, id string) (*domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	copied := *batch
	return &copied, nil
}

func (m *mockRepository) ListBatches(_ context.Context, limit, offset int) ([]domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MessageBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, *b)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) DeleteBatch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.batches, id)
	for entryID, entry := range m.entries {
		if entry.BatchID == id {
			delete(m.entries, entryID)
		}
	}
	m.deletedBatches = append(m.deletedBatches, id)
	return nil
}

func (m *mockRepository) SetBatchStatus(_ context.Context, id string, status domain.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	batch.Status = status
	return nil
}

func (m *mockRepository) CreateEntries(_ context.Context, entries []*domain.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createEntriesErr != nil {
		return m.createEntriesErr
	}
	for _, entry := range entries {
		copied := *entry
		if copied.Status == "" {
			copied.Status = domain.EntryStatusPending
		}
		m.entries[entry.ID] = &copied
	}
	return nil
}

func (m *mockRepository) ListBatchEntries(_ context.Context, batchID string) ([]domain.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxEntry
	for _, entry := range m.entries {
		if entry.BatchID == batchID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (m *mockRepository) ClaimDueEntries(_ context.Context, now time.Time, maxRetries, limit int) ([]*domain.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	var claimed []*domain.OutboxEntry
	for _, entry := range m.entries {
		if len(claimed) >= limit {
			break
		}
		if entry.Status != domain.EntryStatusPending {
			continue
		}
		if entry.SendAfter.After(now) || entry.RetryCount >= maxRetries {
			continue
		}
		entry.Status = domain.EntryStatusProcessing
		m.claimedAt[entry.ID] = now
		copied := *entry
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (m *mockRepository) RequeueStuckEntries(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var requeued int64
	for id, entry := range m.entries {
		if entry.Status != domain.EntryStatusProcessing {
			continue
		}
		if claimed, ok := m.claimedAt[id]; ok && claimed.Before(cutoff) {
			entry.Status = domain.EntryStatusPending
			delete(m.claimedAt, id)
			requeued++
		}
	}
	return requeued, nil
}

func (m *mockRepository) MarkEntrySent(_ context.Context, id, providerMessageID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok || entry.Status != domain.EntryStatusProcessing {
		return ErrEntryNotClaimed
	}
	entry.Status = domain.EntryStatusSent
	entry.ProviderMessageID = providerMessageID
	entry.SentAt = &sentAt
	entry.LastError = ""
	return nil
}

func (m *mockRepository) MarkEntryRetry(_ context.Context, id, lastError string, sendAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok || entry.Status != domain.EntryStatusProcessing {
		return ErrEntryNotClaimed
	}
	entry.Status = domain.EntryStatusPending
	entry.RetryCount++
	entry.LastError = lastError
	entry.SendAfter = sendAfter
	return nil
}

func (m *mockRepository) MarkEntryFailed(_ context.Context, id, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok || entry.Status != domain.EntryStatusProcessing {
		return ErrEntryNotClaimed
	}
	entry.Status = domain.EntryStatusFailed
	entry.RetryCount++
	entry.LastError = lastError
	return nil
}

func (m *mockRepository) RecomputeBatchStatus(_ context.Context, batchID string) (domain.BatchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recomputed = append(m.recomputed, batchID)

	batch, ok := m.batches[batchID]
	if !ok {
		return "", ErrBatchNotFound
	}

	var total, sent, terminal int
	for _, entry := range m.entries {
		if entry.BatchID != batchID {
			continue
		}
		total++
		if entry.Status == domain.EntryStatusSent {
			sent++
		}
		if entry.Status.Terminal() {
			terminal++
		}
	}

	switch {
	case total > 0 && sent == total:
		batch.Status = domain.BatchStatusSent
	case total > 0 && terminal == total:
		batch.Status = domain.BatchStatusPartial
	}
	return batch.Status, nil
}

func (m *mockRepository) OutboxStats(_ context.Context) (*OutboxStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &OutboxStats{}
	for _, entry := range m.entries {
		switch entry.Status {
		case domain.EntryStatusPending:
			stats.Pending++
		case domain.EntryStatusProcessing:
			stats.Processing++
		case domain.EntryStatusSent:
			stats.Sent++
		case domain.EntryStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *mockRepository) entry(id string) domain.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.entries[id]
}

func (m *mockRepository) entriesForBatch(batchID string) []domain.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxEntry
	for _, entry := range m.entries {
		if entry.BatchID == batchID {
			out = append(out, *entry)
		}
	}
	return out
}

// mockRoster implements ClientSource, LessonSource and OptOutStore.
type mockRoster struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
	lessons map[string]*domain.Lesson

	clientsErr error
	optedOut   []string
}

func newMockRoster(clients ...*domain.Client) *mockRoster {
	r := &mockRoster{
		clients: make(map[string]*domain.Client),
		lessons: make(map[string]*domain.Lesson),
	}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

func (m *mockRoster) GetClientByID(_ context.Context, id string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s not found", id)
	}
	copied := *client
	return &copied, nil
}

func (m *mockRoster) GetClientsByIDs(_ context.Context, ids []string) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clientsErr != nil {
		return nil, m.clientsErr
	}
	var out []domain.Client
	for _, id := range ids {
		if client, ok := m.clients[id]; ok {
			out = append(out, *client)
		}
	}
	return out, nil
}

func (m *mockRoster) GetLessonByID(_ context.Context, id string) (*domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lesson, ok := m.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s not found", id)
	}
	copied := *lesson
	return &copied, nil
}

func (m *mockRoster) SetSMSOptOutByPhone(_ context.Context, phone string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optedOut = append(m.optedOut, phone)
	var updated int64
	for _, client := range m.clients {
		if client.Phone == phone {
			client.SMSOptOut = true
			updated++
		}
	}
	return updated, nil
}

// mockSender records sends for one channel and can fail selectively
// by destination.
type mockSender struct {
	channel domain.Channel

	mu      sync.Mutex
	sent    []OutboundMessage
	failFor map[string]error
}

func newMockSender(channel domain.Channel) *mockSender {
	return &mockSender{
		channel: channel,
		failFor: make(map[string]error),
	}
}

func (m *mockSender) Channel() domain.Channel { return m.channel }

func (m *mockSender) Send(_ context.Context, msg OutboundMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[msg.To]; ok {
		return "", err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("prov-%d", len(m.sent)), nil
}

func (m *mockSender) sentMessages() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
