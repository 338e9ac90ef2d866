package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret-32-characters-long!!"
	testIssuer = "session-layer"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.IdentityClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() *models.IdentityClaims {
	now := time.Now()
	return &models.IdentityClaims{
		Type:  AccessTokenType,
		Email: "alice@example.com",
		Name:  "Alice",
		Role:  "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
}

func identityEcho(t *testing.T, got **models.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenVerifier_Verify(t *testing.T) {
	v := NewTokenVerifier(testSecret, testIssuer)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	refresh := validClaims()
	refresh.Type = "refresh"

	noSubject := validClaims()
	noSubject.Subject = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), false},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("another-secret-32-characters-xx"), validClaims()), true},
		{"HS512 rejected", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()), true},
		{"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), true},
		{"wrong issuer", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer), true},
		{"refresh token", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), refresh), true},
		{"missing subject", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject), true},
		{"missing expiry", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry), true},
		{"garbage", "not.a.token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
		})
	}
}

func TestTokenVerifier_NoIssuerConfigured(t *testing.T) {
	v := NewTokenVerifier(testSecret, "")
	claims := validClaims()
	claims.Issuer = "anything"

	_, err := v.Verify(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims))
	assert.NoError(t, err)
}

func TestRequireIdentity(t *testing.T) {
	v := NewTokenVerifier(testSecret, testIssuer)
	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"no token", "Bearer", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *models.Identity
			handler := RequireIdentity(v)(identityEcho(t, &got))

			req := httptest.NewRequest(http.MethodGet, "/me/devices", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, &models.Identity{ID: "user-1", Email: "alice@example.com", Name: "Alice", Role: "user"}, got)
			} else {
				assert.Nil(t, got)
				assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		identity   *models.Identity
		wantStatus int
	}{
		{"admin passes", &models.Identity{ID: "a", Role: "admin"}, http.StatusOK},
		{"user forbidden", &models.Identity{ID: "u", Role: "user"}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *models.Identity
			handler := RequireRole("admin")(identityEcho(t, &got))

			req := httptest.NewRequest(http.MethodGet, "/admin/security/alerts", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.identity))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
