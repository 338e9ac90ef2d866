package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@example.co.uk", "a@*******.**.uk"},
		{"not-an-email", "[invalid-email]"},
		{"bob@localhost", "b**@localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizedEmail(tt.in))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("email=a@b.com"))
	assert.True(t, SanitizeQueryString("Code=ABC123"))
	assert.False(t, SanitizeQueryString("limit=10&offset=20"))
}

func newBufferLogger() (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewAuditLogger(slog.New(h)), &buf
}

func TestLogAuthEvent_FailureIsWarnAndMasked(t *testing.T) {
	al, buf := newBufferLogger()

	al.LogAuthEvent(context.Background(), AuditEvent{
		EventType: "login",
		Success:   false,
		Reason:    "password_invalid",
		Email:     "alice@example.com",
		IPAddress: "203.0.113.10",
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "auth", line["audit_type"])
	assert.Equal(t, "password_invalid", line["reason"])
	assert.Equal(t, "a****@*******.com", line["email"])
	assert.NotContains(t, line, "user_id")
}

func TestLogAlert_LowSeverityIsInfo(t *testing.T) {
	al, buf := newBufferLogger()

	al.LogAlert(context.Background(), AlertEvent{
		AlertType: "new_device",
		Severity:  "low",
		UserID:    "u-1",
		Message:   "login from a new device",
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "alert", line["audit_type"])
	assert.Equal(t, "new_device", line["alert_type"])
}
