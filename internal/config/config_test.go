package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"LoginWindow", cfg.Security.LoginWindow, 60 * time.Second},
		{"CaptchaTTL", cfg.Security.CaptchaTTL, 5 * time.Minute},
		{"VerificationCodeTTL", cfg.Security.VerificationCodeTTL, 10 * time.Minute},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Security.LoginMaxAttempts != 10 {
		t.Errorf("LoginMaxAttempts: got %d, want 10", cfg.Security.LoginMaxAttempts)
	}
	if cfg.Security.RateLimitBackend != RateLimitBackendPostgres {
		t.Errorf("RateLimitBackend: got %q, want %q", cfg.Security.RateLimitBackend, RateLimitBackendPostgres)
	}
	if !cfg.Security.RequireEmailVerification {
		t.Error("RequireEmailVerification: got false, want true")
	}
}

func TestLoad_CustomSecurityValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("LOGIN_WINDOW", "2m")
	t.Setenv("RATE_LIMIT_BACKEND", "Redis")
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "false")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.LoginMaxAttempts != 3 {
		t.Errorf("LoginMaxAttempts: got %d, want 3", cfg.Security.LoginMaxAttempts)
	}
	if cfg.Security.LoginWindow != 2*time.Minute {
		t.Errorf("LoginWindow: got %v, want 2m", cfg.Security.LoginWindow)
	}
	if cfg.Security.RateLimitBackend != RateLimitBackendRedis {
		t.Errorf("RateLimitBackend: got %q, want redis", cfg.Security.RateLimitBackend)
	}
	if cfg.Security.RequireEmailVerification {
		t.Error("RequireEmailVerification: got true, want false")
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "192.168.0.0/16" {
		t.Errorf("TrustedProxies: got %v", cfg.Server.TrustedProxies)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "test")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing AUTH_JWT_SECRET")
	}
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "RATE_LIMIT_BACKEND", "memcached"},
		{"zero login attempts", "LOGIN_MAX_ATTEMPTS", "0"},
		{"negative window", "REGISTER_WINDOW", "-5m"},
		{"short code", "CODE_LENGTH", "2"},
		{"unknown mail provider", "EMAIL_PROVIDER", "carrier-pigeon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("Load() = nil, want error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestValidateJWTSecret(t *testing.T) {
	if err := validateJWTSecret("short", "development"); err == nil {
		t.Error("expected error for short secret")
	}
	if err := validateJWTSecret("sixteen-chars-ok", "production"); err == nil {
		t.Error("expected error for 16-char secret in production")
	}
	if err := validateJWTSecret("a-perfectly-long-production-secret-value", "production"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
