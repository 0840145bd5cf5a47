package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// SyncLogRepository persists the audit trail of external sync attempts.
// Rows are written outside the ticket transaction so a rolled-back creation
// still leaves its attempt on record.
type SyncLogRepository interface {
	Create(ctx context.Context, attempt *domain.SyncAttempt) error
	ListByIntegration(ctx context.Context, integrationID string, limit, offset int) ([]domain.SyncAttempt, error)
}

type syncLogRepository struct {
	pool *pgxpool.Pool
}

// NewSyncLogRepository instantiates repository.
func NewSyncLogRepository(pool *pgxpool.Pool) SyncLogRepository {
	return &syncLogRepository{pool: pool}
}

func (r *syncLogRepository) Create(ctx context.Context, attempt *domain.SyncAttempt) error {
	const query = `
        INSERT INTO integration_sync_attempts (integration_id, ticket_key, outcome, error_code, error_message, duration_ms)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		attempt.IntegrationID,
		attempt.TicketKey,
		attempt.Outcome,
		attempt.ErrorCode,
		attempt.ErrorMessage,
		attempt.DurationMs,
	).Scan(&attempt.ID, &attempt.CreatedAt)
}

func (r *syncLogRepository) ListByIntegration(ctx context.Context, integrationID string, limit, offset int) ([]domain.SyncAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, integration_id, ticket_key, outcome, error_code, error_message, duration_ms, created_at
        FROM integration_sync_attempts
        WHERE integration_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, integrationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSyncAttempts(rows)
}

func scanSyncAttempts(rows pgx.Rows) ([]domain.SyncAttempt, error) {
	var result []domain.SyncAttempt
	for rows.Next() {
		var attempt domain.SyncAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.IntegrationID,
			&attempt.TicketKey,
			&attempt.Outcome,
			&attempt.ErrorCode,
			&attempt.ErrorMessage,
			&attempt.DurationMs,
			&attempt.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}
	return result, rows.Err()
}
