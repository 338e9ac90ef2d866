package logger

import (
	"context"
	"log/slog"
)

// AuditEvent is the log-side view of a recorded authentication attempt
type AuditEvent struct {
	EventType string
	Success   bool
	Reason    string
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
	DeviceID  string
}

// AlertEvent is the log-side view of a raised security alert
type AlertEvent struct {
	AlertType string
	Severity  string
	UserID    string
	Email     string
	Message   string
}

// AuditLogger writes one structured "audit" line per auth event or alert
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthEvent logs an authentication attempt. Failures are logged at warn.
func (al *AuditLogger) LogAuthEvent(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
	}

	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAlert logs a raised security alert. Medium and high alerts are logged at warn.
func (al *AuditLogger) LogAlert(ctx context.Context, alert AlertEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "alert"),
		slog.String("alert_type", alert.AlertType),
		slog.String("severity", alert.Severity),
		slog.String("message", alert.Message),
	}

	if alert.UserID != "" {
		attrs = append(attrs, slog.String("user_id", alert.UserID))
	}
	if alert.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(alert.Email)))
	}

	level := slog.LevelWarn
	if alert.Severity == "low" {
		level = slog.LevelInfo
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
