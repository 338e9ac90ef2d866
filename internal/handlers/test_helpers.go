package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/BradenHooton/authcore/internal/services"
	pkghttp "github.com/BradenHooton/authcore/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentityContext adds a verified identity to the request context
func WithIdentityContext(req *http.Request, userID, email, role string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &models.Identity{
		ID:    userID,
		Email: email,
		Role:  role,
	}))
}

// WithChiRouteContext sets chi URL parameters on a request
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	IssueCaptchaFunc      func(ctx context.Context) (*services.Captcha, error)
	LoginFunc             func(ctx context.Context, in services.LoginInput) (*models.Identity, error)
	StartRegistrationFunc func(ctx context.Context, email string, meta services.RequestMeta) error
	RegisterFunc          func(ctx context.Context, in services.RegisterInput) (*models.Identity, error)
	VerifyEmailFunc       func(ctx context.Context, email, code string, meta services.RequestMeta) error
	ForgotPasswordFunc    func(ctx context.Context, email string, meta services.RequestMeta) error
	ResetPasswordFunc     func(ctx context.Context, in services.ResetPasswordInput) error
	RecordLogoutFunc      func(ctx context.Context, identity *models.Identity, meta services.RequestMeta)
}

func (m *MockAuthService) IssueCaptcha(ctx context.Context) (*services.Captcha, error) {
	if m.IssueCaptchaFunc != nil {
		return m.IssueCaptchaFunc(ctx)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*models.Identity, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) StartRegistration(ctx context.Context, email string, meta services.RequestMeta) error {
	if m.StartRegistrationFunc != nil {
		return m.StartRegistrationFunc(ctx, email, meta)
	}
	return nil
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.Identity, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, email, code string, meta services.RequestMeta) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, email, code, meta)
	}
	return nil
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email string, meta services.RequestMeta) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email, meta)
	}
	return nil
}

func (m *MockAuthService) ResetPassword(ctx context.Context, in services.ResetPasswordInput) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, in)
	}
	return nil
}

func (m *MockAuthService) RecordLogout(ctx context.Context, identity *models.Identity, meta services.RequestMeta) {
	if m.RecordLogoutFunc != nil {
		m.RecordLogoutFunc(ctx, identity, meta)
	}
}
