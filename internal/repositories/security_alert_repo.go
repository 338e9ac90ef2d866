package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const securityAlertColumns = `id, alert_type, severity, user_id, email, message, meta, resolved, created_at`

// SecurityAlertRepository handles security alert data access
type SecurityAlertRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityAlertRepository creates a new SecurityAlertRepository
func NewSecurityAlertRepository(db *database.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{pool: db.Pool}
}

func scanSecurityAlertRow(row rowScanner) (*models.SecurityAlert, error) {
	var (
		alert models.SecurityAlert
		meta  []byte
	)

	err := row.Scan(
		&alert.ID, &alert.AlertType, &alert.Severity, &alert.UserID, &alert.Email,
		&alert.Message, &meta, &alert.Resolved, &alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Meta, err = models.DecodeAlertMeta(alert.AlertType, meta)
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

func scanSecurityAlertRows(rows pgx.Rows) ([]*models.SecurityAlert, error) {
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)

	for rows.Next() {
		alert, err := scanSecurityAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security alert rows: %w", err)
	}

	return alerts, nil
}

// Create inserts an alert. The alert type is taken from its meta.
func (r *SecurityAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	if alert.Meta == nil {
		return nil, fmt.Errorf("%w: alert meta is required", models.ErrBadRequest)
	}

	meta, err := json.Marshal(alert.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert meta: %w", err)
	}

	query := `
		INSERT INTO security_alerts (alert_type, severity, user_id, email, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + securityAlertColumns

	result, err := scanSecurityAlertRow(r.pool.QueryRow(
		ctx, query,
		string(alert.Meta.AlertType()), string(alert.Severity),
		alert.UserID, alert.Email, alert.Message, meta,
	))
	if err != nil {
		return nil, database.StoreError("create security alert", err)
	}

	return result, nil
}

// ListRecent returns alerts newest first, optionally only unresolved ones
func (r *SecurityAlertRepository) ListRecent(ctx context.Context, limit, offset int, unresolvedOnly bool) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + securityAlertColumns + `
		FROM security_alerts
		WHERE ($3::boolean = false OR resolved = false)
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset, unresolvedOnly)
	if err != nil {
		return nil, database.StoreError("query security alerts", err)
	}

	return scanSecurityAlertRows(rows)
}

// ListByUserID returns a user's alerts newest first
func (r *SecurityAlertRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + securityAlertColumns + `
		FROM security_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, database.StoreError("query security alerts", err)
	}

	return scanSecurityAlertRows(rows)
}
