package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/pkg/contact"
)

// ClientSource provides client reads from the roster collaborator.
type ClientSource interface {
	GetClientByID(ctx context.Context, id string) (*domain.Client, error)
	GetClientsByIDs(ctx context.Context, ids []string) ([]domain.Client, error)
}

// LessonSource provides lesson reads for template variables.
type LessonSource interface {
	GetLessonByID(ctx context.Context, id string) (*domain.Lesson, error)
}

// OptOutStore records channel opt-outs on the roster.
type OptOutStore interface {
	// SetSMSOptOutByPhone flags every client matching the normalized
	// phone number and returns how many rows changed.
	SetSMSOptOutByPhone(ctx context.Context, phone string) (int64, error)
}

// Service provides batch creation and webhook business logic.
type Service struct {
	repo    Repository
	clients ClientSource
	optOuts OptOutStore
}

// NewService creates a new messaging service.
func NewService(repo Repository, clients ClientSource, optOuts OptOutStore) *Service {
	return &Service{
		repo:    repo,
		clients: clients,
		optOuts: optOuts,
	}
}

// CreateBatchInput contains data for composing one batch.
type CreateBatchInput struct {
	LessonID  string
	ClientIDs []string
	Channel   domain.BatchChannel
	Subject   string
	Body      string
}

// BatchReceipt is returned after a successful batch creation.
type BatchReceipt struct {
	BatchID        string `json:"batch_id"`
	RecipientCount int    `json:"recipient_count"`
}

// CreateBatch persists a batch and fans it out into outbox entries, one
// per eligible (client, channel) pair. A batch that fans out to zero
// entries is deleted again and ErrNoEligibleRecipients is returned, so
// no orphan batch record survives the call.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (*BatchReceipt, error) {
	batch := &domain.MessageBatch{
		ID:       uuid.NewString(),
		LessonID: input.LessonID,
		Channel:  input.Channel,
		Subject:  input.Subject,
		Body:     input.Body,
		Status:   domain.BatchStatusPending,
	}

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	clients, err := s.clients.GetClientsByIDs(ctx, input.ClientIDs)
	if err != nil {
		s.rollbackBatch(ctx, batch.ID)
		return nil, fmt.Errorf("fetch clients: %w", err)
	}

	now := time.Now()
	entries := make([]*domain.OutboxEntry, 0, len(clients))
	for i := range clients {
		client := &clients[i]
		for _, channel := range input.Channel.Channels() {
			if !Eligible(client, channel) {
				continue
			}

			entry := &domain.OutboxEntry{
				ID:        uuid.NewString(),
				BatchID:   batch.ID,
				ClientID:  client.ID,
				Channel:   channel,
				Status:    domain.EntryStatusPending,
				SendAfter: now,
			}
			switch channel {
			case domain.ChannelEmail:
				entry.DestEmail = client.Email
			case domain.ChannelSMS:
				entry.DestPhone = client.Phone
			}
			entries = append(entries, entry)
		}
	}

	if len(entries) == 0 {
		s.rollbackBatch(ctx, batch.ID)
		return nil, ErrNoEligibleRecipients
	}

	if err := s.repo.CreateEntries(ctx, entries); err != nil {
		s.rollbackBatch(ctx, batch.ID)
		return nil, fmt.Errorf("create outbox entries: %w", err)
	}

	if err := s.repo.SetBatchStatus(ctx, batch.ID, domain.BatchStatusSending); err != nil {
		return nil, fmt.Errorf("set batch status: %w", err)
	}

	slog.Info("batch created",
		"batch_id", batch.ID,
		"channel", input.Channel,
		"clients", len(clients),
		"entries", len(entries),
	)

	return &BatchReceipt{
		BatchID:        batch.ID,
		RecipientCount: len(entries),
	}, nil
}

func (s *Service) rollbackBatch(ctx context.Context, batchID string) {
	if err := s.repo.DeleteBatch(ctx, batchID); err != nil {
		slog.Error("failed to roll back batch", "batch_id", batchID, "error", err)
	}
}

// BatchDetail is a batch together with its outbox entries.
type BatchDetail struct {
	Batch   *domain.MessageBatch `json:"batch"`
	Entries []domain.OutboxEntry `json:"entries"`
}

// GetBatch returns one batch with its entries.
func (s *Service) GetBatch(ctx context.Context, id string) (*BatchDetail, error) {
	batch, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListBatchEntries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list batch entries: %w", err)
	}

	return &BatchDetail{Batch: batch, Entries: entries}, nil
}

// ListBatches returns batches ordered most recent first.
func (s *Service) ListBatches(ctx context.Context, limit, offset int) ([]domain.MessageBatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListBatches(ctx, limit, offset)
}

// Inbound SMS keywords that trigger an opt-out, matched as
// case-insensitive substrings of the message body.
var optOutKeywords = []string{"STOP", "UNSUBSCRIBE"}

// ProcessInboundSMS handles an inbound SMS webhook. When the body
// carries an opt-out keyword, every client matching the normalized
// sender number gets sms_opt_out set. Unknown numbers are ignored
// silently: replying with an error would leak roster membership to the
// sender. Returns whether an opt-out was performed.
func (s *Service) ProcessInboundSMS(ctx context.Context, from, body string) (bool, error) {
	upper := strings.ToUpper(body)
	optOut := false
	for _, kw := range optOutKeywords {
		if strings.Contains(upper, kw) {
			optOut = true
			break
		}
	}
	if !optOut {
		return false, nil
	}

	phone := contact.NormalizePhone(from)
	if phone == "" {
		slog.Debug("inbound opt-out from unparseable number", "from", from)
		return true, nil
	}

	updated, err := s.optOuts.SetSMSOptOutByPhone(ctx, phone)
	if err != nil {
		return true, fmt.Errorf("set sms opt-out: %w", err)
	}

	slog.Info("sms opt-out processed", "phone", phone, "clients_updated", updated)
	return true, nil
}
