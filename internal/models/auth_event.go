package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthEventType enumerates the authentication-relevant attempts that get audited
type AuthEventType string

const (
	AuthEventLogin          AuthEventType = "login"
	AuthEventRegister       AuthEventType = "register"
	AuthEventVerifyEmail    AuthEventType = "verify_email"
	AuthEventForgotPassword AuthEventType = "forgot_password"
	AuthEventResetPassword  AuthEventType = "reset_password"
	AuthEventLogout         AuthEventType = "logout"
)

// Valid reports whether t is a known event type
func (t AuthEventType) Valid() bool {
	switch t {
	case AuthEventLogin, AuthEventRegister, AuthEventVerifyEmail,
		AuthEventForgotPassword, AuthEventResetPassword, AuthEventLogout:
		return true
	}
	return false
}

// FailureReason is the machine-readable cause recorded for a failed attempt
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonCaptchaInvalid   FailureReason = "captcha_invalid"
	ReasonRateLimited      FailureReason = "rate_limited"
	ReasonUserNotFound     FailureReason = "user_not_found"
	ReasonEmailNotVerified FailureReason = "email_not_verified"
	ReasonPasswordInvalid  FailureReason = "password_invalid"
	ReasonCodeInvalid      FailureReason = "code_invalid"
	ReasonEmailTaken       FailureReason = "email_taken"
	ReasonPasswordWeak     FailureReason = "password_weak"
	ReasonInternalError    FailureReason = "internal_error"
)

// AuthEventDetail is the structured payload stored with every auth event.
// Reason is empty for successful attempts.
type AuthEventDetail struct {
	Reason FailureReason `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"` // only set for internal_error
}

// FailureDetail builds the detail for a rejected attempt
func FailureDetail(reason FailureReason) AuthEventDetail {
	return AuthEventDetail{Reason: reason}
}

// InternalErrorDetail records an unexpected error message alongside internal_error
func InternalErrorDetail(err error) AuthEventDetail {
	return AuthEventDetail{Reason: ReasonInternalError, Error: err.Error()}
}

// Value implements driver.Valuer for JSONB
func (d AuthEventDetail) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB
func (d *AuthEventDetail) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*d = AuthEventDetail{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported auth event detail type %T", value)
	}
	return json.Unmarshal(raw, d)
}

// AuthEvent is an append-only audit record of an authentication attempt
type AuthEvent struct {
	ID        uuid.UUID       `json:"id"`
	EventType AuthEventType   `json:"event_type"`
	Success   bool            `json:"success"`
	UserID    *string         `json:"user_id,omitempty"`
	Email     *string         `json:"email,omitempty"`
	IPAddress *string         `json:"ip,omitempty"`
	UserAgent *string         `json:"user_agent,omitempty"`
	DeviceID  *string         `json:"device_id,omitempty"`
	Detail    AuthEventDetail `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

// StringPtr returns nil for empty strings so optional columns stay NULL
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
