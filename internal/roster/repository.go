// Package roster exposes the client and lesson reads the messaging
// core depends on. Roster management itself (CSV import, editing) is
// handled by an external collaborator that writes the same tables.
package roster

import (
	"context"
	"errors"

	"github.com/swimdesk/lesson-notify/internal/domain"
)

// Repository errors.
var (
	ErrClientNotFound = errors.New("client not found")
	ErrLessonNotFound = errors.New("lesson not found")
)

// Repository defines the roster reads and the single opt-out write the
// messaging core needs.
type Repository interface {
	GetClientByID(ctx context.Context, id string) (*domain.Client, error)
	GetClientsByIDs(ctx context.Context, ids []string) ([]domain.Client, error)
	GetLessonByID(ctx context.Context, id string) (*domain.Lesson, error)

	// SetSMSOptOutByPhone flags every client whose stored phone equals
	// the given normalized number. Returns the number of rows changed;
	// zero matches is not an error.
	SetSMSOptOutByPhone(ctx context.Context, phone string) (int64, error)
}
