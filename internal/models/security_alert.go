package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertType identifies which heuristic raised an alert
type AlertType string

const (
	AlertNewDevice            AlertType = "new_device"
	AlertRepeatedLoginFailure AlertType = "repeated_login_failure"
	AlertSuspiciousReset      AlertType = "suspicious_reset"
)

// Severity of a security alert
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// AlertMeta is the typed context attached to an alert. Each implementation
// belongs to exactly one alert type.
type AlertMeta interface {
	AlertType() AlertType
}

// NewDeviceMeta describes a login from a device not previously seen for the user
type NewDeviceMeta struct {
	DeviceID  string `json:"device_id"`
	IPAddress string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

func (NewDeviceMeta) AlertType() AlertType { return AlertNewDevice }

// RepeatedFailureMeta describes a rate-limit rejection on the login path
type RepeatedFailureMeta struct {
	Key       string `json:"key"`
	Max       int    `json:"max"`
	WindowMs  int64  `json:"window_ms"`
	IPAddress string `json:"ip,omitempty"`
}

func (RepeatedFailureMeta) AlertType() AlertType { return AlertRepeatedLoginFailure }

// SuspiciousResetMeta carries an unexpected error that escaped an account flow
type SuspiciousResetMeta struct {
	Flow      string `json:"flow"`
	Error     string `json:"error"`
	IPAddress string `json:"ip,omitempty"`
}

func (SuspiciousResetMeta) AlertType() AlertType { return AlertSuspiciousReset }

// SecurityAlert is an informational record produced by the alert engine
type SecurityAlert struct {
	ID        uuid.UUID `json:"id"`
	AlertType AlertType `json:"alert_type"`
	Severity  Severity  `json:"severity"`
	UserID    *string   `json:"user_id,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Message   string    `json:"message"`
	Meta      AlertMeta `json:"meta"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

// DecodeAlertMeta restores the concrete meta type stored for an alert type
func DecodeAlertMeta(alertType AlertType, raw []byte) (AlertMeta, error) {
	var (
		meta AlertMeta
		err  error
	)

	switch alertType {
	case AlertNewDevice:
		var m NewDeviceMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case AlertRepeatedLoginFailure:
		var m RepeatedFailureMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case AlertSuspiciousReset:
		var m SuspiciousResetMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	default:
		return nil, fmt.Errorf("unknown alert type %q", alertType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s meta: %w", alertType, err)
	}

	return meta, nil
}

func unmarshalMeta(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
