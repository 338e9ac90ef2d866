package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit backends
const (
	RateLimitBackendPostgres = "postgres"
	RateLimitBackendRedis    = "redis"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Redis    RedisConfig
	Security SecurityConfig
	Email    EmailConfig
	Auth     AuthConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SecurityConfig holds the knobs of the authentication security core
type SecurityConfig struct {
	RateLimitBackend         string
	LoginMaxAttempts         int
	LoginWindow              time.Duration
	RegisterMaxAttempts      int
	RegisterWindow           time.Duration
	ForgotMaxAttempts        int
	ForgotWindow             time.Duration
	RequireEmailVerification bool
	CaptchaTTL               time.Duration
	VerificationCodeTTL      time.Duration
	ResetCodeTTL             time.Duration
	CodeLength               int
	CaptchaLength            int
	CleanupInterval          time.Duration
	IPRequestsPerMinute      int
	FailureMinDuration       time.Duration
	FailureJitter            time.Duration
}

type EmailConfig struct {
	Provider    string // "ses" or "log"
	AWSRegion   string
	FromAddress string
}

// AuthConfig configures verification of bearer tokens issued by the external session layer
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("AUTH_JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authcore"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "")),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			RateLimitBackend:         strings.ToLower(getEnv("RATE_LIMIT_BACKEND", RateLimitBackendPostgres)),
			LoginMaxAttempts:         getEnvAsInt("LOGIN_MAX_ATTEMPTS", 10),
			LoginWindow:              getEnvAsDuration("LOGIN_WINDOW", 60*time.Second),
			RegisterMaxAttempts:      getEnvAsInt("REGISTER_MAX_ATTEMPTS", 5),
			RegisterWindow:           getEnvAsDuration("REGISTER_WINDOW", 10*time.Minute),
			ForgotMaxAttempts:        getEnvAsInt("FORGOT_MAX_ATTEMPTS", 5),
			ForgotWindow:             getEnvAsDuration("FORGOT_WINDOW", 10*time.Minute),
			RequireEmailVerification: getEnvAsBool("REQUIRE_EMAIL_VERIFICATION", true),
			CaptchaTTL:               getEnvAsDuration("CAPTCHA_TTL", 5*time.Minute),
			VerificationCodeTTL:      getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
			ResetCodeTTL:             getEnvAsDuration("RESET_CODE_TTL", 15*time.Minute),
			CodeLength:               getEnvAsInt("CODE_LENGTH", 6),
			CaptchaLength:            getEnvAsInt("CAPTCHA_LENGTH", 5),
			CleanupInterval:          getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			IPRequestsPerMinute:      getEnvAsInt("IP_REQUESTS_PER_MINUTE", 30),
			FailureMinDuration:       getEnvAsDuration("AUTH_FAILURE_MIN_DURATION", 300*time.Millisecond),
			FailureJitter:            getEnvAsDuration("AUTH_FAILURE_JITTER", 100*time.Millisecond),
		},
		Email: EmailConfig{
			Provider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@example.com"),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Security.validate(); err != nil {
		return nil, err
	}

	switch cfg.Email.Provider {
	case "ses", "log":
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be one of ses, log (got %q)", cfg.Email.Provider)
	}

	return cfg, nil
}

func (s *SecurityConfig) validate() error {
	switch s.RateLimitBackend {
	case RateLimitBackendPostgres, RateLimitBackendRedis:
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of postgres, redis (got %q)", s.RateLimitBackend)
	}

	limits := map[string]int{
		"LOGIN_MAX_ATTEMPTS":    s.LoginMaxAttempts,
		"REGISTER_MAX_ATTEMPTS": s.RegisterMaxAttempts,
		"FORGOT_MAX_ATTEMPTS":   s.ForgotMaxAttempts,
	}
	for name, v := range limits {
		if v < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}

	windows := map[string]time.Duration{
		"LOGIN_WINDOW":          s.LoginWindow,
		"REGISTER_WINDOW":       s.RegisterWindow,
		"FORGOT_WINDOW":         s.ForgotWindow,
		"CAPTCHA_TTL":           s.CaptchaTTL,
		"VERIFICATION_CODE_TTL": s.VerificationCodeTTL,
		"RESET_CODE_TTL":        s.ResetCodeTTL,
	}
	for name, v := range windows {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if s.CodeLength < 4 || s.CodeLength > 12 {
		return fmt.Errorf("CODE_LENGTH must be between 4 and 12")
	}
	if s.CaptchaLength < 4 || s.CaptchaLength > 12 {
		return fmt.Errorf("CAPTCHA_LENGTH must be between 4 and 12")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for the shared verification secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("AUTH_JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
