package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/BradenHooton/authcore/internal/services"
	pkgauth "github.com/BradenHooton/authcore/pkg/auth"
	pkghttp "github.com/BradenHooton/authcore/pkg/http"
)

// Responses that must not depend on whether an account exists
const (
	codeSentMessage      = "if the address is eligible, a code has been sent"
	emailVerifiedMessage = "email verified"
	passwordResetMessage = "password updated"
	weakPasswordMessage  = "password must be 8-72 characters with upper and lower case letters, a digit and a symbol"
)

// AuthServiceInterface defines the credential flows the handler drives
type AuthServiceInterface interface {
	IssueCaptcha(ctx context.Context) (*services.Captcha, error)
	Login(ctx context.Context, in services.LoginInput) (*models.Identity, error)
	StartRegistration(ctx context.Context, email string, meta services.RequestMeta) error
	Register(ctx context.Context, in services.RegisterInput) (*models.Identity, error)
	VerifyEmail(ctx context.Context, email, code string, meta services.RequestMeta) error
	ForgotPassword(ctx context.Context, email string, meta services.RequestMeta) error
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
	RecordLogout(ctx context.Context, identity *models.Identity, meta services.RequestMeta)
}

// CaptchaRenderer turns a captcha code into an image the client can display
type CaptchaRenderer func(code string) (string, error)

// AuthHandler handles the login, registration and password reset endpoints
type AuthHandler struct {
	service AuthServiceInterface
	render  CaptchaRenderer
	ip      *pkghttp.ClientIPResolver
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ip *pkghttp.ClientIPResolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		render:  pkgauth.RenderCaptcha,
		ip:      ip,
		logger:  logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=128"`
	CaptchaID   string `json:"captcha_id" validate:"required,uuid"`
	CaptchaCode string `json:"captcha_code" validate:"required,max=16"`
}

// StartRegistrationRequest asks for a verification code
type StartRegistrationRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// RegisterRequest completes registration with the e-mailed code
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Code     string `json:"code" validate:"required,max=16"`
}

// VerifyEmailRequest represents the request body for email verification
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,max=16"`
}

// ForgotPasswordRequest asks for a password reset code
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// ResetPasswordRequest completes a password reset
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Code        string `json:"code" validate:"required,max=16"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

// CaptchaResponse carries the challenge image, never the code
type CaptchaResponse struct {
	CaptchaID string    `json:"captcha_id"`
	Image     string    `json:"image"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Captcha issues a new captcha challenge
// @Router /auth/captcha [post]
func (h *AuthHandler) Captcha(w http.ResponseWriter, r *http.Request) {
	captcha, err := h.service.IssueCaptcha(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	image, err := h.render(captcha.Code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, CaptchaResponse{
		CaptchaID: captcha.ID,
		Image:     image,
		ExpiresAt: captcha.ExpiresAt,
	})
}

// Login checks a credential attempt and returns the caller's identity
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	identity, err := h.service.Login(r.Context(), services.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		CaptchaID:   req.CaptchaID,
		CaptchaCode: req.CaptchaCode,
		RequestMeta: h.requestMeta(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, identity)
}

// StartRegistration mails a verification code
// @Router /auth/register/start [post]
func (h *AuthHandler) StartRegistration(w http.ResponseWriter, r *http.Request) {
	var req StartRegistrationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.StartRegistration(r.Context(), req.Email, h.requestMeta(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: codeSentMessage})
}

// Register creates a verified account
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	identity, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		Code:        req.Code,
		RequestMeta: h.requestMeta(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, identity)
}

// VerifyEmail marks an existing account verified
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Email, req.Code, h.requestMeta(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: emailVerifiedMessage})
}

// ForgotPassword mails a reset code. The response never reveals whether the account exists.
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email, h.requestMeta(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: codeSentMessage})
}

// ResetPassword replaces the password using the e-mailed code
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), services.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.NewPassword,
		RequestMeta: h.requestMeta(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: passwordResetMessage})
}

// Logout records a logout for the bearer identity
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	h.service.RecordLogout(r.Context(), identity, h.requestMeta(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{
		IP:        h.ip.ClientIP(r),
		UserAgent: pkghttp.UserAgent(r),
		DeviceID:  pkghttp.DeviceID(r),
	}
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.logger, err)
}

// writeServiceError maps service errors to responses. Every credential
// rejection collapses to the same 401 body.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, services.ErrWeakPassword):
		pkghttp.WriteBadRequest(w, weakPasswordMessage)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "invalid request")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "not found")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteInternalError(w, "internal server error")
	}
}

// decodeAndValidate reads a JSON body into dst and writes a 400 when it is malformed or invalid
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}

	return true
}
