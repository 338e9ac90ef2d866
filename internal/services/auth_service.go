package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/BradenHooton/authcore/internal/models"
	pkgauth "github.com/BradenHooton/authcore/pkg/auth"
	pkglogger "github.com/BradenHooton/authcore/pkg/logger"
	"github.com/google/uuid"
)

// Rate limit key prefixes
const (
	loginKeyPrefix    = "login:"
	registerKeyPrefix = "register:"
	forgotKeyPrefix   = "forgot:"
)

// UserRepository is the account store owned by the surrounding site
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// AuthPolicy holds the deployment's limits and lifetimes
type AuthPolicy struct {
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
}

// SecurityCore bundles the components the authenticator orchestrates
type SecurityCore struct {
	Limiter *RateLimiter
	Tokens  *TokenStore
	Events  *AuthEventRecorder
	Devices *DeviceTracker
	Alerts  *AlertEngine
}

// RequestMeta is what the transport knows about the caller
type RequestMeta struct {
	IP        string
	UserAgent string
	DeviceID  string
}

// LoginInput is a single login attempt
type LoginInput struct {
	Email       string
	Password    string
	CaptchaID   string
	CaptchaCode string
	RequestMeta
}

// RegisterInput completes a registration started with StartRegistration
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Code     string
	RequestMeta
}

// ResetPasswordInput completes a reset started with ForgotPassword
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
	RequestMeta
}

// Captcha is a freshly issued captcha challenge. Code is handed to the
// renderer and must never reach the client as text.
type Captcha struct {
	ID        string    `json:"captcha_id"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrWeakPassword is returned when a new password fails the strength rules
var ErrWeakPassword = fmt.Errorf("%w: password does not meet requirements", models.ErrBadRequest)

// AuthService decides every credential attempt. Rejections all surface as
// models.ErrInvalidCredentials; the recorded auth event carries the reason.
type AuthService struct {
	users   UserRepository
	hasher  PasswordHasher
	core    SecurityCore
	mailer  Mailer
	policy  AuthPolicy
	timing  *auth.TimingDelay
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserRepository, hasher PasswordHasher, core SecurityCore, mailer Mailer, policy AuthPolicy, timing *auth.TimingDelay, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		hasher:  hasher,
		core:    core,
		mailer:  mailer,
		policy:  policy,
		timing:  timing,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// IssueCaptcha creates a captcha challenge stored under "captcha:<id>"
func (s *AuthService) IssueCaptcha(ctx context.Context) (*Captcha, error) {
	code, err := pkgauth.GenerateCode(s.policy.CaptchaLength)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.core.Tokens.Issue(ctx, models.TokenIdentifier(models.TokenNamespaceCaptcha, id), code, s.policy.CaptchaTTL); err != nil {
		return nil, err
	}

	return &Captcha{ID: id, Code: code, ExpiresAt: s.nowFunc().Add(s.policy.CaptchaTTL)}, nil
}

// Login runs the attempt through captcha, rate limit, user lookup,
// verification gate, password and device checks, stopping at the first
// failure. Store failures abort the attempt and are returned as-is.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*models.Identity, error) {
	start := s.nowFunc()
	email := normalizeEmail(in.Email)
	event := newEvent(models.AuthEventLogin, email, in.RequestMeta)

	reject := func(reason models.FailureReason) (*models.Identity, error) {
		event.Detail = models.FailureDetail(reason)
		s.core.Events.Record(ctx, event)
		s.timing.WaitFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}
	abort := func(err error) (*models.Identity, error) {
		event.Detail = models.InternalErrorDetail(err)
		s.core.Events.Record(ctx, event)
		return nil, err
	}

	// 1. Captcha
	ok, err := s.core.Tokens.Consume(ctx, models.TokenIdentifier(models.TokenNamespaceCaptcha, in.CaptchaID), in.CaptchaCode)
	if err != nil {
		return abort(err)
	}
	if !ok {
		return reject(models.ReasonCaptchaInvalid)
	}

	// 2. Rate limit
	key := loginKeyPrefix + email
	limited, err := s.core.Limiter.IsLimited(ctx, key, s.policy.LoginMaxAttempts, s.policy.LoginWindow)
	if err != nil {
		return abort(err)
	}
	if limited {
		s.raise(ctx, models.SeverityMedium, AlertContext{
			Email:   email,
			Message: "too many login attempts",
			Meta: models.RepeatedFailureMeta{
				Key:       key,
				Max:       s.policy.LoginMaxAttempts,
				WindowMs:  s.policy.LoginWindow.Milliseconds(),
				IPAddress: in.IP,
			},
		})
		return reject(models.ReasonRateLimited)
	}

	// 3. User lookup
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return reject(models.ReasonUserNotFound)
		}
		return abort(err)
	}
	event.UserID = models.StringPtr(user.ID)
	if user.PasswordHash == "" {
		return reject(models.ReasonUserNotFound)
	}

	// 4. Verification gate
	if s.policy.RequireEmailVerification && !user.EmailVerified {
		return reject(models.ReasonEmailNotVerified)
	}

	// 5. Password
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return reject(models.ReasonPasswordInvalid)
	}

	// 6. Device
	if in.DeviceID != "" {
		known, err := s.core.Devices.Upsert(ctx, user.ID, in.DeviceID, in.UserAgent, in.IP)
		if err != nil {
			return abort(err)
		}
		if !known {
			s.raise(ctx, models.SeverityLow, AlertContext{
				UserID:  user.ID,
				Email:   user.Email,
				Message: "login from a new device",
				Meta: models.NewDeviceMeta{
					DeviceID:  in.DeviceID,
					IPAddress: in.IP,
					UserAgent: in.UserAgent,
				},
			})
		}
	}

	// 7. Success
	event.Success = true
	event.Detail = models.AuthEventDetail{}
	s.core.Events.Record(ctx, event)

	return user.ToIdentity(), nil
}

// StartRegistration mails a verification code to email. Addresses that already
// belong to a verified account get the same response but no code.
func (s *AuthService) StartRegistration(ctx context.Context, email string, meta RequestMeta) error {
	email = normalizeEmail(email)
	event := newEvent(models.AuthEventRegister, email, meta)

	return s.guardFlow(ctx, "register", event, func() error {
		limited, err := s.core.Limiter.IsLimited(ctx, registerKeyPrefix+email, s.policy.RegisterMaxAttempts, s.policy.RegisterWindow)
		if err != nil {
			return err
		}
		if limited {
			event.Detail = models.FailureDetail(models.ReasonRateLimited)
			s.core.Events.Record(ctx, event)
			return models.ErrInvalidCredentials
		}

		user, err := s.users.GetByEmail(ctx, email)
		switch {
		case err == nil && user.EmailVerified:
			event.UserID = models.StringPtr(user.ID)
			event.Detail = models.FailureDetail(models.ReasonEmailTaken)
			s.core.Events.Record(ctx, event)
			return nil
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return err
		}

		return s.sendCode(ctx, models.TokenNamespaceVerifyEmail, email, "Verify your email address", s.policy.VerificationCodeTTL)
	})
}

// Register consumes the e-mailed code and creates a verified account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Identity, error) {
	start := s.nowFunc()
	email := normalizeEmail(in.Email)
	event := newEvent(models.AuthEventRegister, email, in.RequestMeta)

	var identity *models.Identity
	err := s.guardFlow(ctx, "register", event, func() error {
		if err := pkgauth.ValidatePassword(in.Password); err != nil {
			event.Detail = models.FailureDetail(models.ReasonPasswordWeak)
			s.core.Events.Record(ctx, event)
			return ErrWeakPassword
		}

		ok, err := s.core.Tokens.Consume(ctx, models.TokenIdentifier(models.TokenNamespaceVerifyEmail, email), in.Code)
		if err != nil {
			return err
		}
		if !ok {
			return s.rejectFlow(ctx, event, models.ReasonCodeInvalid, start)
		}

		if _, err := s.users.GetByEmail(ctx, email); err == nil {
			return s.rejectFlow(ctx, event, models.ReasonEmailTaken, start)
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return err
		}

		user, err := s.users.Create(ctx, &models.User{
			Email:         email,
			PasswordHash:  hash,
			Name:          strings.TrimSpace(in.Name),
			Role:          "user",
			EmailVerified: true,
		})
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				return s.rejectFlow(ctx, event, models.ReasonEmailTaken, start)
			}
			return err
		}

		event.Success = true
		event.UserID = models.StringPtr(user.ID)
		s.core.Events.Record(ctx, event)

		identity = user.ToIdentity()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return identity, nil
}

// VerifyEmail marks an existing account verified using the code sent by StartRegistration
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string, meta RequestMeta) error {
	start := s.nowFunc()
	email = normalizeEmail(email)
	event := newEvent(models.AuthEventVerifyEmail, email, meta)

	ok, err := s.core.Tokens.Consume(ctx, models.TokenIdentifier(models.TokenNamespaceVerifyEmail, email), code)
	if err != nil {
		return s.abortFlow(ctx, event, err)
	}
	if !ok {
		return s.rejectFlow(ctx, event, models.ReasonCodeInvalid, start)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.rejectFlow(ctx, event, models.ReasonUserNotFound, start)
		}
		return s.abortFlow(ctx, event, err)
	}
	event.UserID = models.StringPtr(user.ID)

	if !user.EmailVerified {
		if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
			return s.abortFlow(ctx, event, err)
		}
	}

	event.Success = true
	s.core.Events.Record(ctx, event)
	return nil
}

// ForgotPassword mails a reset code when email belongs to an account with a
// password. The response is the same whether or not a code was sent.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	email = normalizeEmail(email)
	event := newEvent(models.AuthEventForgotPassword, email, meta)

	limited, err := s.core.Limiter.IsLimited(ctx, forgotKeyPrefix+email, s.policy.ForgotMaxAttempts, s.policy.ForgotWindow)
	if err != nil {
		return s.abortFlow(ctx, event, err)
	}
	if limited {
		event.Detail = models.FailureDetail(models.ReasonRateLimited)
		s.core.Events.Record(ctx, event)
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			event.Detail = models.FailureDetail(models.ReasonUserNotFound)
			s.core.Events.Record(ctx, event)
			return nil
		}
		return s.abortFlow(ctx, event, err)
	}
	event.UserID = models.StringPtr(user.ID)

	if user.PasswordHash == "" {
		event.Detail = models.FailureDetail(models.ReasonUserNotFound)
		s.core.Events.Record(ctx, event)
		return nil
	}

	// A delivery failure answers like an unknown address.
	if err := s.sendCode(ctx, models.TokenNamespaceResetPassword, email, "Reset your password", s.policy.ResetCodeTTL); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver reset code",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err),
		)
		_ = s.abortFlow(ctx, event, err)
		return nil
	}

	event.Success = true
	s.core.Events.Record(ctx, event)
	return nil
}

// ResetPassword consumes the reset code and replaces the password hash
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	start := s.nowFunc()
	email := normalizeEmail(in.Email)
	event := newEvent(models.AuthEventResetPassword, email, in.RequestMeta)

	return s.guardFlow(ctx, "reset_password", event, func() error {
		if err := pkgauth.ValidatePassword(in.NewPassword); err != nil {
			event.Detail = models.FailureDetail(models.ReasonPasswordWeak)
			s.core.Events.Record(ctx, event)
			return ErrWeakPassword
		}

		ok, err := s.core.Tokens.Consume(ctx, models.TokenIdentifier(models.TokenNamespaceResetPassword, email), in.Code)
		if err != nil {
			return err
		}
		if !ok {
			return s.rejectFlow(ctx, event, models.ReasonCodeInvalid, start)
		}

		user, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return s.rejectFlow(ctx, event, models.ReasonUserNotFound, start)
			}
			return err
		}
		event.UserID = models.StringPtr(user.ID)

		hash, err := s.hasher.Hash(in.NewPassword)
		if err != nil {
			return err
		}
		if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}

		event.Success = true
		s.core.Events.Record(ctx, event)
		return nil
	})
}

// RecordLogout records a logout performed by the external session layer
func (s *AuthService) RecordLogout(ctx context.Context, identity *models.Identity, meta RequestMeta) {
	event := newEvent(models.AuthEventLogout, identity.Email, meta)
	event.UserID = models.StringPtr(identity.ID)
	event.Success = true
	s.core.Events.Record(ctx, event)
}

// guardFlow runs an account flow and turns any error that is not an expected
// rejection into a suspicious_reset alert plus an internal_error event
func (s *AuthService) guardFlow(ctx context.Context, flow string, event *models.AuthEvent, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, models.ErrInvalidCredentials) || errors.Is(err, ErrWeakPassword) {
		return err
	}

	s.logger.ErrorContext(ctx, "unexpected error in account flow",
		slog.String("flow", flow),
		slog.String("email", pkglogger.SanitizedEmail(deref(event.Email))),
		slog.Any("error", err),
	)

	s.raise(ctx, models.SeverityLow, AlertContext{
		UserID:  deref(event.UserID),
		Email:   deref(event.Email),
		Message: "unexpected error during " + flow,
		Meta: models.SuspiciousResetMeta{
			Flow:      flow,
			Error:     err.Error(),
			IPAddress: deref(event.IPAddress),
		},
	})

	return s.abortFlow(ctx, event, err)
}

func (s *AuthService) rejectFlow(ctx context.Context, event *models.AuthEvent, reason models.FailureReason, start time.Time) error {
	event.Detail = models.FailureDetail(reason)
	s.core.Events.Record(ctx, event)
	s.timing.WaitFrom(ctx, start)
	return models.ErrInvalidCredentials
}

func (s *AuthService) abortFlow(ctx context.Context, event *models.AuthEvent, err error) error {
	event.Success = false
	event.Detail = models.InternalErrorDetail(err)
	s.core.Events.Record(ctx, event)
	return fmt.Errorf("%s failed: %w", event.EventType, err)
}

// sendCode issues a fresh code under namespace:email and mails it
func (s *AuthService) sendCode(ctx context.Context, namespace, email, subject string, ttl time.Duration) error {
	code, err := pkgauth.GenerateCode(s.policy.CodeLength)
	if err != nil {
		return err
	}

	identifier := models.TokenIdentifier(namespace, email)
	if err := s.core.Tokens.Issue(ctx, identifier, code, ttl); err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, email, subject, code); err != nil {
		if rerr := s.core.Tokens.Revoke(ctx, identifier); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to revoke undelivered short code",
				slog.String("namespace", namespace),
				slog.Any("error", rerr),
			)
		}
		return err
	}

	s.logger.InfoContext(ctx, "short code issued",
		slog.String("namespace", namespace),
		slog.String("email", pkglogger.SanitizedEmail(email)),
	)
	return nil
}

func (s *AuthService) raise(ctx context.Context, severity models.Severity, ac AlertContext) {
	if _, err := s.core.Alerts.Raise(ctx, severity, ac); err != nil {
		s.logger.ErrorContext(ctx, "failed to raise security alert",
			slog.String("alert_type", string(ac.Meta.AlertType())),
			slog.Any("error", err),
		)
	}
}

func newEvent(eventType models.AuthEventType, email string, meta RequestMeta) *models.AuthEvent {
	return &models.AuthEvent{
		EventType: eventType,
		Email:     models.StringPtr(email),
		IPAddress: models.StringPtr(meta.IP),
		UserAgent: models.StringPtr(meta.UserAgent),
		DeviceID:  models.StringPtr(meta.DeviceID),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
