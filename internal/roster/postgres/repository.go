// Package postgres provides the PostgreSQL implementation of the
// roster repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/roster"
)

// Repository implements roster.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const clientColumns = `
	id, parent_name, child_name,
	COALESCE(email, ''), COALESCE(phone, ''),
	sms_opt_out, email_opt_out, created_at, updated_at
`

func scanClient(row pgx.Row) (*domain.Client, error) {
	var c domain.Client
	err := row.Scan(
		&c.ID,
		&c.ParentName,
		&c.ChildName,
		&c.Email,
		&c.Phone,
		&c.SMSOptOut,
		&c.EmailOptOut,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClientByID retrieves a client by ID.
func (r *Repository) GetClientByID(ctx context.Context, id string) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

	client, err := scanClient(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, roster.ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// GetClientsByIDs retrieves clients for the given ids. Unknown ids are
// simply absent from the result.
func (r *Repository) GetClientsByIDs(ctx context.Context, ids []string) ([]domain.Client, error) {
	if len(ids) == 0 {
		return make([]domain.Client, 0), nil
	}

	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = ANY($1::uuid[])`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, len(ids))
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}

	return clients, rows.Err()
}

// GetLessonByID retrieves a lesson by ID.
func (r *Repository) GetLessonByID(ctx context.Context, id string) (*domain.Lesson, error) {
	query := `
		SELECT id, name, COALESCE(start_time, ''), created_at
		FROM lessons
		WHERE id = $1
	`
	var lesson domain.Lesson
	err := r.db.QueryRow(ctx, query, id).Scan(
		&lesson.ID,
		&lesson.Name,
		&lesson.StartTime,
		&lesson.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, roster.ErrLessonNotFound
		}
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return &lesson, nil
}

// SetSMSOptOutByPhone flags every client matching the normalized phone
// number.
func (r *Repository) SetSMSOptOutByPhone(ctx context.Context, phone string) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE clients
		SET sms_opt_out = TRUE, updated_at = NOW()
		WHERE phone = $1
	`, phone)
	if err != nil {
		return 0, fmt.Errorf("set sms opt-out: %w", err)
	}
	return result.RowsAffected(), nil
}
