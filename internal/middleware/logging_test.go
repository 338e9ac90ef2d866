package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := SecureLogger(logger, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/verify-email?email=alice@example.com&code=AB7KQ9", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if strings.Contains(line, "alice@example.com") || strings.Contains(line, "AB7KQ9") {
		t.Fatalf("log line leaked query values: %s", line)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["path"] != "/auth/verify-email?[REDACTED]" {
		t.Errorf("path: got %v", entry["path"])
	}
	if entry["client_ip"] != "192.0.2.1" {
		t.Errorf("client_ip: got %v", entry["client_ip"])
	}
}

func TestSecureLogger_KeepsHarmlessQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := SecureLogger(logger, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/security/alerts?limit=10", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["path"] != "/admin/security/alerts?limit=10" {
		t.Errorf("path: got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status: got %v", entry["status"])
	}
}
