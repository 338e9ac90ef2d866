//go:build integration

package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/BradenHooton/authcore/internal/services"
	pkglogger "github.com/BradenHooton/authcore/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *database.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("authcore"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}

	testDB = database.NewFromPool(pool, slog.New(slog.DiscardHandler))
	if err := database.NewBootstrapper(testDB, slog.New(slog.DiscardHandler)).Ensure(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to bootstrap schema: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func uniqueKey(prefix string) string {
	return prefix + ":" + uuid.NewString()
}

// ============================================================================
// Bootstrapper
// ============================================================================

func TestBootstrapper_IdempotentAcrossInstances(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = database.NewBootstrapper(testDB, logger).Ensure(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	var tables int
	err := testDB.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name IN ('rate_limit_buckets', 'verification_tokens', 'auth_events', 'devices', 'security_alerts')
	`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 5, tables)
}

// ============================================================================
// Rate limit buckets
// ============================================================================

func TestRateLimitRepository_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	repo := NewRateLimitRepository(testDB)
	key := uniqueKey("login")
	now := time.Now()

	const k = 50
	counts := make([]int, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := repo.Increment(ctx, key, time.Minute, now)
			assert.NoError(t, err)
			counts[i] = c
		}(i)
	}
	wg.Wait()

	sort.Ints(counts)
	for i, c := range counts {
		assert.Equal(t, i+1, c, "every increment must observe a distinct count")
	}

	bucket, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, k, bucket.Count)
}

func TestRateLimitRepository_WindowReset(t *testing.T) {
	ctx := context.Background()
	repo := NewRateLimitRepository(testDB)
	key := uniqueKey("login")
	start := time.Now().Truncate(time.Millisecond)

	for i := 1; i <= 3; i++ {
		c, err := repo.Increment(ctx, key, time.Minute, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, i, c)
	}

	// still inside the window that opened at start+1s
	c, err := repo.Increment(ctx, key, time.Minute, start.Add(60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, c)

	c, err = repo.Increment(ctx, key, time.Minute, start.Add(61*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	bucket, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, bucket.WindowStart.Equal(start.Add(61*time.Second)))
}

func TestRateLimitRepository_GetMissing(t *testing.T) {
	_, err := NewRateLimitRepository(testDB).Get(context.Background(), uniqueKey("missing"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// ============================================================================
// Short-code tokens
// ============================================================================

func TestTokenRepository_SingleUse(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(testDB)
	id := uniqueKey("captcha")

	_, err := repo.Upsert(ctx, id, "hash-1", time.Now().Add(time.Minute))
	require.NoError(t, err)

	token, err := repo.Take(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", token.TokenHash)

	_, err = repo.Take(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTokenRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(testDB)
	id := uniqueKey("verify-email")

	_, err := repo.Upsert(ctx, id, "old", time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, id, "new", time.Now().Add(2*time.Minute))
	require.NoError(t, err)

	token, err := repo.Take(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", token.TokenHash)
}

func TestTokenStore_ConcurrentConsumeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := services.NewTokenStore(NewTokenRepository(testDB), slog.New(slog.DiscardHandler))
	id := uniqueKey("captcha")
	require.NoError(t, store.Issue(ctx, id, "AB7KQ", time.Minute))

	const consumers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Consume(ctx, id, "AB7KQ")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestTokenStore_ExpiredIsRemoved(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(testDB)
	store := services.NewTokenStore(repo, slog.New(slog.DiscardHandler))
	id := uniqueKey("reset-password")

	_, err := repo.Upsert(ctx, id, "irrelevant", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	ok, err := store.Consume(ctx, id, "whatever")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Take(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound, "expired token must be gone after the consume attempt")
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(testDB)
	live := uniqueKey("captcha")
	dead := uniqueKey("captcha")

	_, err := repo.Upsert(ctx, live, "h", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, dead, "h", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	n, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = repo.Take(ctx, dead)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.Take(ctx, live)
	assert.NoError(t, err)
}

// ============================================================================
// Devices
// ============================================================================

func TestDeviceRepository_FirstAndSecondSighting(t *testing.T) {
	ctx := context.Background()
	repo := NewDeviceRepository(testDB)
	userID := uuid.NewString()
	first := time.Now().Truncate(time.Millisecond)

	known, err := repo.Upsert(ctx, userID, "laptop", models.StringPtr("ua-1"), models.StringPtr("203.0.113.1"), first)
	require.NoError(t, err)
	assert.False(t, known)

	known, err = repo.Upsert(ctx, userID, "laptop", models.StringPtr("ua-2"), models.StringPtr("203.0.113.2"), first.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, known)

	d, err := repo.Get(ctx, userID, "laptop")
	require.NoError(t, err)
	assert.True(t, d.FirstSeenAt.Equal(first))
	assert.True(t, d.LastSeenAt.After(d.FirstSeenAt))
	assert.Equal(t, "ua-2", *d.UserAgent)
	assert.Equal(t, "203.0.113.2", *d.LastIP)
}

func TestDeviceRepository_ConcurrentFirstSighting(t *testing.T) {
	ctx := context.Background()
	repo := NewDeviceRepository(testDB)
	userID := uuid.NewString()

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		newCount int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			known, err := repo.Upsert(ctx, userID, "phone", nil, nil, time.Now())
			assert.NoError(t, err)
			if !known {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, newCount)

	devices, err := repo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDeviceRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewDeviceRepository(testDB)
	userID := uuid.NewString()

	_, err := repo.Upsert(ctx, userID, "tablet", nil, nil, time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, userID, "tablet"))
	assert.ErrorIs(t, repo.Delete(ctx, userID, "tablet"), models.ErrNotFound)
}

// ============================================================================
// Auth events and alerts
// ============================================================================

func TestAuthEventRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAuthEventRepository(testDB)
	userID := uuid.NewString()

	_, err := repo.Create(ctx, &models.AuthEvent{
		EventType: models.AuthEventLogin,
		UserID:    models.StringPtr(userID),
		Email:     models.StringPtr("alice@example.com"),
		Detail:    models.FailureDetail(models.ReasonPasswordInvalid),
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.AuthEvent{
		EventType: models.AuthEventLogin,
		Success:   true,
		UserID:    models.StringPtr(userID),
	})
	require.NoError(t, err)

	events, err := repo.ListByUserID(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Success, "newest first")
	assert.Equal(t, models.ReasonPasswordInvalid, events[1].Detail.Reason)
	assert.Equal(t, "alice@example.com", *events[1].Email)

	failures, err := repo.ListFailures(ctx, 100, 0)
	require.NoError(t, err)
	for _, e := range failures {
		assert.False(t, e.Success)
	}
}

func TestSecurityAlertRepository_MetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSecurityAlertRepository(testDB)
	userID := uuid.NewString()

	_, err := repo.Create(ctx, &models.SecurityAlert{
		Severity: models.SeverityLow,
		UserID:   models.StringPtr(userID),
		Message:  "login from a new device",
		Meta:     models.NewDeviceMeta{DeviceID: "laptop", IPAddress: "203.0.113.1"},
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.SecurityAlert{
		Severity: models.SeverityMedium,
		UserID:   models.StringPtr(userID),
		Message:  "too many login attempts",
		Meta:     models.RepeatedFailureMeta{Key: "login:alice@example.com", Max: 10, WindowMs: 60000},
	})
	require.NoError(t, err)

	alerts, err := repo.ListByUserID(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, models.AlertRepeatedLoginFailure, alerts[0].AlertType)
	assert.Equal(t, models.RepeatedFailureMeta{Key: "login:alice@example.com", Max: 10, WindowMs: 60000}, alerts[0].Meta)
	assert.Equal(t, models.AlertNewDevice, alerts[1].AlertType)
	assert.Equal(t, models.NewDeviceMeta{DeviceID: "laptop", IPAddress: "203.0.113.1"}, alerts[1].Meta)
	assert.False(t, alerts[1].Resolved)
}

// ============================================================================
// Users
// ============================================================================

func TestUserRepository_CreateAndConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testDB)
	email := uuid.NewString() + "@example.com"

	created, err := repo.Create(ctx, &models.User{Email: email, PasswordHash: "hash", Name: "Alice", EmailVerified: true})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user", created.Role)

	_, err = repo.Create(ctx, &models.User{Email: email, Name: "Dup"})
	assert.ErrorIs(t, err, models.ErrConflict)

	require.NoError(t, repo.UpdatePasswordHash(ctx, created.ID, "new-hash"))
	got, err := repo.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

// ============================================================================
// Full login path against Postgres
// ============================================================================

func TestLogin_RepeatedFailuresAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	audit := pkglogger.NewAuditLogger(logger)
	users := NewUserRepository(testDB)
	alertsRepo := NewSecurityAlertRepository(testDB)

	email := uuid.NewString() + "@example.com"
	hasher := services.TestHasher()
	hash, err := hasher.Hash("SecureP@ss123")
	require.NoError(t, err)
	user, err := users.Create(ctx, &models.User{Email: email, PasswordHash: hash, Name: "Alice", EmailVerified: true})
	require.NoError(t, err)

	core := services.SecurityCore{
		Limiter: services.NewRateLimiter(NewRateLimitRepository(testDB), logger),
		Tokens:  services.NewTokenStore(NewTokenRepository(testDB), logger),
		Events:  services.NewAuthEventRecorder(NewAuthEventRepository(testDB), audit, logger),
		Devices: services.NewDeviceTracker(NewDeviceRepository(testDB), logger),
		Alerts:  services.NewAlertEngine(alertsRepo, audit, logger),
	}
	svc := services.NewAuthService(users, hasher, core, &services.RecordingMailer{}, services.DefaultTestPolicy(), nil, logger)

	attempt := func(password string) error {
		captcha, err := svc.IssueCaptcha(ctx)
		require.NoError(t, err)
		_, err = svc.Login(ctx, services.LoginInput{
			Email: email, Password: password,
			CaptchaID: captcha.ID, CaptchaCode: captcha.Code,
		})
		return err
	}

	for i := 0; i < 10; i++ {
		require.ErrorIs(t, attempt("WrongP@ss999"), models.ErrInvalidCredentials)
	}
	err = attempt("WrongP@ss999")
	require.True(t, errors.Is(err, models.ErrInvalidCredentials))

	events, err := NewAuthEventRepository(testDB).ListByUserID(ctx, user.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, events, 10, "the rate-limited attempt stops before user lookup")
	for _, e := range events {
		assert.Equal(t, models.ReasonPasswordInvalid, e.Detail.Reason)
	}

	alerts, err := alertsRepo.ListRecent(ctx, 100, 0, true)
	require.NoError(t, err)
	matches := 0
	for _, a := range alerts {
		if m, ok := a.Meta.(models.RepeatedFailureMeta); ok && m.Key == "login:"+email {
			matches++
			assert.Equal(t, models.SeverityMedium, a.Severity)
		}
	}
	assert.Equal(t, 1, matches)
}
