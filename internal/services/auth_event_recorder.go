package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/authcore/internal/models"
	pkglogger "github.com/BradenHooton/authcore/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// AuthEventRepository is the append-only auth event log
type AuthEventRepository interface {
	Create(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuthEvent, error)
	ListFailures(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error)
	Count(ctx context.Context) (int64, error)
	CountFailures(ctx context.Context) (int64, error)
}

// AuthEventRecorder writes every authentication attempt twice: an audit log
// line and a row in the event table
type AuthEventRecorder struct {
	repo   AuthEventRepository
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
}

// NewAuthEventRecorder creates a new AuthEventRecorder
func NewAuthEventRecorder(repo AuthEventRepository, audit *pkglogger.AuditLogger, logger *slog.Logger) *AuthEventRecorder {
	return &AuthEventRecorder{
		repo:   repo,
		audit:  audit,
		logger: logger,
	}
}

// Record appends event. A failed insert is logged and otherwise ignored so
// that auditing never decides the outcome of the attempt it describes.
func (r *AuthEventRecorder) Record(ctx context.Context, event *models.AuthEvent) {
	if !event.EventType.Valid() {
		r.logger.ErrorContext(ctx, "refusing to record auth event with unknown type",
			slog.String("event_type", string(event.EventType)),
		)
		return
	}

	r.audit.LogAuthEvent(ctx, pkglogger.AuditEvent{
		EventType: string(event.EventType),
		Success:   event.Success,
		Reason:    string(event.Detail.Reason),
		UserID:    deref(event.UserID),
		Email:     deref(event.Email),
		IPAddress: deref(event.IPAddress),
		UserAgent: deref(event.UserAgent),
		DeviceID:  deref(event.DeviceID),
	})

	if _, err := r.repo.Create(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist auth event",
			slog.String("event_type", string(event.EventType)),
			slog.Bool("success", event.Success),
			slog.Any("error", err),
		)
	}
}

// ListRecent returns events newest first
func (r *AuthEventRecorder) ListRecent(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error) {
	limit, offset = ClampPage(limit, offset)
	events, err := r.repo.ListRecent(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth events: %w", err)
	}
	return events, nil
}

// ListForUser returns one user's events newest first
func (r *AuthEventRecorder) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuthEvent, error) {
	limit, offset = ClampPage(limit, offset)
	events, err := r.repo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user auth events: %w", err)
	}
	return events, nil
}

// ListFailures returns failed attempts newest first
func (r *AuthEventRecorder) ListFailures(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error) {
	limit, offset = ClampPage(limit, offset)
	events, err := r.repo.ListFailures(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed auth events: %w", err)
	}
	return events, nil
}

// Count returns the number of recorded events
func (r *AuthEventRecorder) Count(ctx context.Context) (int64, error) {
	n, err := r.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count auth events: %w", err)
	}
	return n, nil
}

// CountFailures returns the number of failed attempts
func (r *AuthEventRecorder) CountFailures(ctx context.Context) (int64, error) {
	n, err := r.repo.CountFailures(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed auth events: %w", err)
	}
	return n, nil
}

// ClampPage applies the default page size and caps limit and offset
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
