package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deviceColumns = `user_id, device_id, user_agent, last_ip, first_seen_at, last_seen_at`

// DeviceRepository handles known-device data access
type DeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{pool: db.Pool}
}

func scanDeviceRow(row rowScanner) (*models.Device, error) {
	var d models.Device

	err := row.Scan(&d.UserID, &d.DeviceID, &d.UserAgent, &d.LastIP, &d.FirstSeenAt, &d.LastSeenAt)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// Upsert records a sighting of (userID, deviceID) at seenAt and reports
// whether the pair existed before this call. xmax is zero only for a row
// this statement inserted, so the answer comes from the same atomic write.
func (r *DeviceRepository) Upsert(ctx context.Context, userID, deviceID string, userAgent, ip *string, seenAt time.Time) (bool, error) {
	query := `
		INSERT INTO devices (user_id, device_id, user_agent, last_ip, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			user_agent = EXCLUDED.user_agent,
			last_ip = EXCLUDED.last_ip,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	if err := r.pool.QueryRow(ctx, query, userID, deviceID, userAgent, ip, seenAt).Scan(&inserted); err != nil {
		return false, database.StoreError("upsert device", err)
	}

	return !inserted, nil
}

// Get returns a single device
func (r *DeviceRepository) Get(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 AND device_id = $2`

	d, err := scanDeviceRow(r.pool.QueryRow(ctx, query, userID, deviceID))
	if err != nil {
		return nil, database.StoreError("get device", err)
	}

	return d, nil
}

// ListByUserID returns a user's devices, most recently active first
func (r *DeviceRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE user_id = $1
		ORDER BY last_seen_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.StoreError("query devices", err)
	}

	return collectDevices(rows)
}

// Delete removes a device; returns ErrNotFound when nothing matched
func (r *DeviceRepository) Delete(ctx context.Context, userID, deviceID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	if err != nil {
		return database.StoreError("delete device", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func collectDevices(rows pgx.Rows) ([]*models.Device, error) {
	defer rows.Close()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}

	return devices, nil
}
