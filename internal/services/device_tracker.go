package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
)

// DeviceRepository stores (user, device) sightings
type DeviceRepository interface {
	Upsert(ctx context.Context, userID, deviceID string, userAgent, ip *string, seenAt time.Time) (bool, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Device, error)
	Delete(ctx context.Context, userID, deviceID string) error
}

// DeviceTracker remembers which device fingerprints each user has logged in from
type DeviceTracker struct {
	repo   DeviceRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewDeviceTracker creates a new DeviceTracker
func NewDeviceTracker(repo DeviceRepository, logger *slog.Logger) *DeviceTracker {
	return &DeviceTracker{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Upsert records a sighting and reports whether the device was known before
// this call. The check and the write are a single store operation, so two
// concurrent first sightings cannot both report "new".
func (t *DeviceTracker) Upsert(ctx context.Context, userID, deviceID, userAgent, ip string) (bool, error) {
	if userID == "" || deviceID == "" {
		return false, fmt.Errorf("%w: user and device id are required", models.ErrBadRequest)
	}

	known, err := t.repo.Upsert(ctx, userID, deviceID, models.StringPtr(userAgent), models.StringPtr(ip), t.now())
	if err != nil {
		return false, fmt.Errorf("failed to upsert device: %w", err)
	}

	if !known {
		t.logger.InfoContext(ctx, "first sighting of device",
			slog.String("user_id", userID),
			slog.String("device_id", deviceID),
		)
	}

	return known, nil
}

// ListForUser returns a user's devices, most recently active first
func (t *DeviceTracker) ListForUser(ctx context.Context, userID string) ([]*models.Device, error) {
	devices, err := t.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Remove forgets a device so its next login is treated as new again
func (t *DeviceTracker) Remove(ctx context.Context, userID, deviceID string) error {
	if err := t.repo.Delete(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("failed to remove device: %w", err)
	}
	return nil
}
