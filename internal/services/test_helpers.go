package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
	pkgauth "github.com/BradenHooton/authcore/pkg/auth"
	pkglogger "github.com/BradenHooton/authcore/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TestClock is a settable clock shared by every component of a TestHarness
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestClock starts a clock at t
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{now: t}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockUserRepository is an in-memory UserRepository. Any *Func hook that is
// set replaces the in-memory behavior for that method.
type MockUserRepository struct {
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, passwordHash string) error
	MarkEmailVerifiedFunc  func(ctx context.Context, id string) error

	mu    sync.Mutex
	users map[string]*models.User
}

// Put stores a copy of user
func (m *MockUserRepository) Put(user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	u := *user
	m.users[u.ID] = &u
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	for _, u := range m.users {
		if u.Email == user.Email {
			m.mu.Unlock()
			return nil, models.ErrConflict
		}
	}
	m.mu.Unlock()

	created := *user
	created.ID = uuid.NewString()
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	m.Put(&created)
	return &created, nil
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, passwordHash)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.EmailVerified = true
	return nil
}

// MemoryBucketStore is a mutex-guarded BucketStore with the same fixed-window
// semantics as the Postgres upsert
type MemoryBucketStore struct {
	IncrementErr error

	mu      sync.Mutex
	buckets map[string]*models.RateLimitBucket
}

func NewMemoryBucketStore() *MemoryBucketStore {
	return &MemoryBucketStore{buckets: make(map[string]*models.RateLimitBucket)}
}

func (s *MemoryBucketStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	if s.IncrementErr != nil {
		return 0, s.IncrementErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	switch {
	case !ok:
		b = &models.RateLimitBucket{Key: key, Count: 1, WindowStart: now}
		s.buckets[key] = b
	case now.Sub(b.WindowStart) >= window:
		b.Count = 1
		b.WindowStart = now
	default:
		b.Count++
	}
	b.UpdatedAt = now
	return b.Count, nil
}

func (s *MemoryBucketStore) Get(ctx context.Context, key string) (*models.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// MemoryTokenRepository is an in-memory TokenRepository
type MemoryTokenRepository struct {
	TakeErr error

	mu     sync.Mutex
	tokens map[string]*models.ShortCodeToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[string]*models.ShortCodeToken)}
}

func (r *MemoryTokenRepository) Upsert(ctx context.Context, identifier, tokenHash string, expiresAt time.Time) (*models.ShortCodeToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &models.ShortCodeToken{Identifier: identifier, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	r.tokens[identifier] = t
	cp := *t
	return &cp, nil
}

func (r *MemoryTokenRepository) Take(ctx context.Context, identifier string) (*models.ShortCodeToken, error) {
	if r.TakeErr != nil {
		return nil, r.TakeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[identifier]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(r.tokens, identifier)
	return t, nil
}

func (r *MemoryTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// Has reports whether a token is stored under identifier
func (r *MemoryTokenRepository) Has(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[identifier]
	return ok
}

// MemoryAuthEventRepository is an append-only in-memory AuthEventRepository
type MemoryAuthEventRepository struct {
	CreateErr error

	mu     sync.Mutex
	events []*models.AuthEvent
}

func NewMemoryAuthEventRepository() *MemoryAuthEventRepository {
	return &MemoryAuthEventRepository{}
}

func (r *MemoryAuthEventRepository) Create(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error) {
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	r.events = append(r.events, &cp)
	return &cp, nil
}

func (r *MemoryAuthEventRepository) list(match func(*models.AuthEvent) bool, limit, offset int) []*models.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AuthEvent, 0)
	skipped := 0
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if !match(r.events[i]) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, r.events[i])
	}
	return out
}

func (r *MemoryAuthEventRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error) {
	return r.list(func(*models.AuthEvent) bool { return true }, limit, offset), nil
}

func (r *MemoryAuthEventRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuthEvent, error) {
	return r.list(func(e *models.AuthEvent) bool { return deref(e.UserID) == userID }, limit, offset), nil
}

func (r *MemoryAuthEventRepository) ListFailures(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error) {
	return r.list(func(e *models.AuthEvent) bool { return !e.Success }, limit, offset), nil
}

func (r *MemoryAuthEventRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.events)), nil
}

func (r *MemoryAuthEventRepository) CountFailures(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if !e.Success {
			n++
		}
	}
	return n, nil
}

// All returns every event in insertion order
func (r *MemoryAuthEventRepository) All() []*models.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.AuthEvent(nil), r.events...)
}

// Last returns the most recently recorded event, or nil
func (r *MemoryAuthEventRepository) Last() *models.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// MemoryDeviceRepository is an in-memory DeviceRepository
type MemoryDeviceRepository struct {
	UpsertErr error

	mu      sync.Mutex
	devices map[string]*models.Device
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{devices: make(map[string]*models.Device)}
}

func deviceKey(userID, deviceID string) string {
	return userID + "\x00" + deviceID
}

func (r *MemoryDeviceRepository) Upsert(ctx context.Context, userID, deviceID string, userAgent, ip *string, seenAt time.Time) (bool, error) {
	if r.UpsertErr != nil {
		return false, r.UpsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceKey(userID, deviceID)]; ok {
		d.UserAgent = userAgent
		d.LastIP = ip
		d.LastSeenAt = seenAt
		return true, nil
	}
	r.devices[deviceKey(userID, deviceID)] = &models.Device{
		UserID:      userID,
		DeviceID:    deviceID,
		UserAgent:   userAgent,
		LastIP:      ip,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
	}
	return false, nil
}

func (r *MemoryDeviceRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Device, 0)
	for _, d := range r.devices {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	// newest-active first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastSeenAt.After(out[j-1].LastSeenAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *MemoryDeviceRepository) Delete(ctx context.Context, userID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[deviceKey(userID, deviceID)]; !ok {
		return models.ErrNotFound
	}
	delete(r.devices, deviceKey(userID, deviceID))
	return nil
}

// MemoryAlertRepository is an in-memory SecurityAlertRepository
type MemoryAlertRepository struct {
	CreateErr error

	mu     sync.Mutex
	alerts []*models.SecurityAlert
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{}
}

func (r *MemoryAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *alert
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	r.alerts = append(r.alerts, &cp)
	return &cp, nil
}

func (r *MemoryAlertRepository) ListRecent(ctx context.Context, limit, offset int, unresolvedOnly bool) ([]*models.SecurityAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SecurityAlert, 0)
	skipped := 0
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if unresolvedOnly && r.alerts[i].Resolved {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, r.alerts[i])
	}
	return out, nil
}

func (r *MemoryAlertRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SecurityAlert, 0)
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if deref(r.alerts[i].UserID) == userID {
			out = append(out, r.alerts[i])
		}
	}
	return out, nil
}

// OfType returns stored alerts of the given type in insertion order
func (r *MemoryAlertRepository) OfType(t models.AlertType) []*models.SecurityAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SecurityAlert, 0)
	for _, a := range r.alerts {
		if a.AlertType == t {
			out = append(out, a)
		}
	}
	return out
}

// SentMail is one message captured by RecordingMailer
type SentMail struct {
	To      string
	Subject string
	Code    string
}

// RecordingMailer captures outgoing codes instead of sending them
type RecordingMailer struct {
	Err error

	mu   sync.Mutex
	sent []SentMail
}

func (m *RecordingMailer) Send(ctx context.Context, to, subject, code string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Code: code})
	return nil
}

// LastCode returns the most recent code mailed to addr
func (m *RecordingMailer) LastCode(addr string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == addr {
			return m.sent[i].Code, nil
		}
	}
	return "", fmt.Errorf("no mail sent to %s", addr)
}

// Count returns how many messages were captured
func (m *RecordingMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// NewTestUser creates a verified user without a password
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:            id,
		Email:         email,
		Name:          name,
		Role:          "user",
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestUserWithPassword creates a verified user whose password hashes with TestHasher
func NewTestUserWithPassword(id, email, name, password string) *models.User {
	user := NewTestUser(id, email, name)
	hash, err := TestHasher().Hash(password)
	if err != nil {
		panic(err)
	}
	user.PasswordHash = hash
	return user
}

// TestHasher returns a bcrypt hasher at the minimum cost
func TestHasher() *pkgauth.Hasher {
	return &pkgauth.Hasher{Cost: bcrypt.MinCost}
}

// DefaultTestPolicy mirrors the production defaults
func DefaultTestPolicy() AuthPolicy {
	return AuthPolicy{
		LoginMaxAttempts:         10,
		LoginWindow:              60 * time.Second,
		RegisterMaxAttempts:      5,
		RegisterWindow:           10 * time.Minute,
		ForgotMaxAttempts:        5,
		ForgotWindow:             10 * time.Minute,
		RequireEmailVerification: true,
		CaptchaTTL:               5 * time.Minute,
		VerificationCodeTTL:      10 * time.Minute,
		ResetCodeTTL:             15 * time.Minute,
		CodeLength:               6,
		CaptchaLength:            5,
	}
}

// TestHarness wires every security component to in-memory stores and a shared clock
type TestHarness struct {
	Clock   *TestClock
	Buckets *MemoryBucketStore
	Tokens  *MemoryTokenRepository
	Events  *MemoryAuthEventRepository
	Devices *MemoryDeviceRepository
	Alerts  *MemoryAlertRepository
	Users   *MockUserRepository
	Mailer  *RecordingMailer
	Core    SecurityCore
	Auth    *AuthService
}

// NewTestHarness builds a harness around policy
func NewTestHarness(policy AuthPolicy) *TestHarness {
	logger := slog.New(slog.DiscardHandler)
	audit := pkglogger.NewAuditLogger(logger)

	h := &TestHarness{
		Clock:   NewTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Buckets: NewMemoryBucketStore(),
		Tokens:  NewMemoryTokenRepository(),
		Events:  NewMemoryAuthEventRepository(),
		Devices: NewMemoryDeviceRepository(),
		Alerts:  NewMemoryAlertRepository(),
		Users:   &MockUserRepository{},
		Mailer:  &RecordingMailer{},
	}

	limiter := NewRateLimiter(h.Buckets, logger)
	limiter.now = h.Clock.Now
	tokens := NewTokenStore(h.Tokens, logger)
	tokens.now = h.Clock.Now
	devices := NewDeviceTracker(h.Devices, logger)
	devices.now = h.Clock.Now

	h.Core = SecurityCore{
		Limiter: limiter,
		Tokens:  tokens,
		Events:  NewAuthEventRecorder(h.Events, audit, logger),
		Devices: devices,
		Alerts:  NewAlertEngine(h.Alerts, audit, logger),
	}

	h.Auth = NewAuthService(h.Users, TestHasher(), h.Core, h.Mailer, policy, nil, logger)
	h.Auth.nowFunc = h.Clock.Now

	return h
}

// IssueCaptcha returns a fresh captcha id and its answer
func (h *TestHarness) IssueCaptcha(ctx context.Context) (string, string) {
	c, err := h.Auth.IssueCaptcha(ctx)
	if err != nil {
		panic(err)
	}
	return c.ID, c.Code
}
