package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const authEventColumns = `id, event_type, success, user_id, email, ip_address, user_agent, device_id, detail, created_at`

// AuthEventRepository handles the append-only auth_events table
type AuthEventRepository struct {
	pool *pgxpool.Pool
}

// NewAuthEventRepository creates a new AuthEventRepository
func NewAuthEventRepository(db *database.DB) *AuthEventRepository {
	return &AuthEventRepository{pool: db.Pool}
}

func scanAuthEventRow(row rowScanner) (*models.AuthEvent, error) {
	var event models.AuthEvent

	err := row.Scan(
		&event.ID, &event.EventType, &event.Success, &event.UserID, &event.Email,
		&event.IPAddress, &event.UserAgent, &event.DeviceID, &event.Detail, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

func scanAuthEventRows(rows pgx.Rows) ([]*models.AuthEvent, error) {
	defer rows.Close()

	events := make([]*models.AuthEvent, 0)

	for rows.Next() {
		event, err := scanAuthEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth event rows: %w", err)
	}

	return events, nil
}

// Create appends an auth event
func (r *AuthEventRepository) Create(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error) {
	query := `
		INSERT INTO auth_events (
			event_type, success, user_id, email, ip_address, user_agent, device_id, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + authEventColumns

	result, err := scanAuthEventRow(r.pool.QueryRow(
		ctx, query,
		string(event.EventType), event.Success, event.UserID, event.Email,
		event.IPAddress, event.UserAgent, event.DeviceID, event.Detail,
	))
	if err != nil {
		return nil, database.StoreError("create auth event", err)
	}

	return result, nil
}

// ListRecent returns events newest first
func (r *AuthEventRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error) {
	query := `
		SELECT ` + authEventColumns + `
		FROM auth_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.StoreError("query auth events", err)
	}

	return scanAuthEventRows(rows)
}

// ListByUserID returns a user's events newest first
func (r *AuthEventRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuthEvent, error) {
	query := `
		SELECT ` + authEventColumns + `
		FROM auth_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, database.StoreError("query auth events", err)
	}

	return scanAuthEventRows(rows)
}

// ListFailures returns failed attempts newest first
func (r *AuthEventRepository) ListFailures(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error) {
	query := `
		SELECT ` + authEventColumns + `
		FROM auth_events
		WHERE success = false
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.StoreError("query failed auth events", err)
	}

	return scanAuthEventRows(rows)
}

// Count returns the total number of recorded events
func (r *AuthEventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auth_events`).Scan(&count); err != nil {
		return 0, database.StoreError("count auth events", err)
	}
	return count, nil
}

// CountFailures returns the number of failed attempts
func (r *AuthEventRepository) CountFailures(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auth_events WHERE success = false`).Scan(&count); err != nil {
		return 0, database.StoreError("count failed auth events", err)
	}
	return count, nil
}
