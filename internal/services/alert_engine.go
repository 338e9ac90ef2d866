package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/authcore/internal/models"
	pkglogger "github.com/BradenHooton/authcore/pkg/logger"
)

// SecurityAlertRepository stores raised alerts
type SecurityAlertRepository interface {
	Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error)
	ListRecent(ctx context.Context, limit, offset int, unresolvedOnly bool) ([]*models.SecurityAlert, error)
	ListByUserID(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error)
}

// AlertContext describes who an alert is about and why. The alert type comes from Meta.
type AlertContext struct {
	UserID  string
	Email   string
	Message string
	Meta    models.AlertMeta
}

// AlertEngine creates security alerts. It keeps no state; the trigger rules
// live with the callers.
type AlertEngine struct {
	repo   SecurityAlertRepository
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
}

// NewAlertEngine creates a new AlertEngine
func NewAlertEngine(repo SecurityAlertRepository, audit *pkglogger.AuditLogger, logger *slog.Logger) *AlertEngine {
	return &AlertEngine{
		repo:   repo,
		audit:  audit,
		logger: logger,
	}
}

// Raise stores a new alert
func (e *AlertEngine) Raise(ctx context.Context, severity models.Severity, ac AlertContext) (*models.SecurityAlert, error) {
	if ac.Meta == nil {
		return nil, fmt.Errorf("%w: alert meta is required", models.ErrBadRequest)
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", models.ErrBadRequest, severity)
	}

	alert := &models.SecurityAlert{
		AlertType: ac.Meta.AlertType(),
		Severity:  severity,
		UserID:    models.StringPtr(ac.UserID),
		Email:     models.StringPtr(ac.Email),
		Message:   ac.Message,
		Meta:      ac.Meta,
	}

	e.audit.LogAlert(ctx, pkglogger.AlertEvent{
		AlertType: string(alert.AlertType),
		Severity:  string(severity),
		UserID:    ac.UserID,
		Email:     ac.Email,
		Message:   ac.Message,
	})

	created, err := e.repo.Create(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to raise %s alert: %w", alert.AlertType, err)
	}

	return created, nil
}

// ListRecent returns alerts newest first
func (e *AlertEngine) ListRecent(ctx context.Context, limit, offset int, unresolvedOnly bool) ([]*models.SecurityAlert, error) {
	limit, offset = ClampPage(limit, offset)
	alerts, err := e.repo.ListRecent(ctx, limit, offset, unresolvedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list security alerts: %w", err)
	}
	return alerts, nil
}

// ListForUser returns a user's most recent alerts
func (e *AlertEngine) ListForUser(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	limit, _ = ClampPage(limit, 0)
	alerts, err := e.repo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user alerts: %w", err)
	}
	return alerts, nil
}
