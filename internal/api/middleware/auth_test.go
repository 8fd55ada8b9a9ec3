package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ec-shop-core/internal/auth"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-that-is-long-enough", 15*time.Minute, 7*24*time.Hour)
}

func principal(id, email string, role model.Role) *model.Principal {
	return &model.Principal{UserID: id, Email: email, Role: role}
}

// capture returns a handler that records the principal it sees
func capture(dst **model.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := GetPrincipal(r.Context()); ok {
			*dst = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken_Header(t *testing.T) {
	jwtService := newTestJWTService()
	middleware := AuthMiddleware(jwtService)

	token, _, err := jwtService.GenerateAccessToken(principal("user-123", "test@example.com", model.RoleCustomer))
	require.NoError(t, err)

	var captured *model.Principal
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(capture(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-123", captured.UserID)
	assert.Equal(t, "test@example.com", captured.Email)
	assert.Equal(t, model.RoleCustomer, captured.Role)
}

func TestAuthMiddleware_ValidToken_Cookie(t *testing.T) {
	jwtService := newTestJWTService()
	middleware := AuthMiddleware(jwtService)

	token, _, err := jwtService.GenerateAccessToken(principal("user-456", "cookie@example.com", model.RoleAdmin))
	require.NoError(t, err)

	var captured *model.Principal
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := httptest.NewRecorder()

	middleware(capture(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-456", captured.UserID)
	assert.Equal(t, model.RoleAdmin, captured.Role)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtService := newTestJWTService()
	other := auth.NewJWTService("another-secret-key-that-is-long-enough", 15*time.Minute, time.Hour)
	foreign, _, err := other.GenerateAccessToken(principal("user-123", "test@example.com", model.RoleCustomer))
	require.NoError(t, err)
	refresh, _, err := jwtService.GenerateRefreshToken("user-123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		contains string
	}{
		{"no token", "", "authentication required"},
		{"garbage", "Bearer invalid-token", "invalid token"},
		{"wrong signature", "Bearer " + foreign, "invalid token"},
		{"refresh token", "Bearer " + refresh, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(jwtService)(handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)
			assert.False(t, called)
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-key-that-is-long-enough", time.Millisecond, 7*24*time.Hour)
	middleware := AuthMiddleware(jwtService)

	token, _, err := jwtService.GenerateAccessToken(principal("user-123", "test@example.com", model.RoleCustomer))
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(1100 * time.Millisecond)

	var captured *model.Principal
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(capture(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, captured)
}

func TestAuthMiddleware_CookieTakesPrecedence(t *testing.T) {
	jwtService := newTestJWTService()
	middleware := AuthMiddleware(jwtService)

	cookieToken, _, _ := jwtService.GenerateAccessToken(principal("cookie-user", "cookie@example.com", model.RoleCustomer))
	headerToken, _, _ := jwtService.GenerateAccessToken(principal("header-user", "header@example.com", model.RoleAdmin))

	var captured *model.Principal
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: cookieToken})
	req.Header.Set("Authorization", "Bearer "+headerToken)
	rec := httptest.NewRecorder()

	middleware(capture(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "cookie-user", captured.UserID)
}

// ============================================
// Optional Auth Middleware Tests
// ============================================

func TestOptionalAuthMiddleware_ValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	middleware := OptionalAuthMiddleware(jwtService)

	token, _, _ := jwtService.GenerateAccessToken(principal("user-123", "test@example.com", model.RoleStaff))

	var captured *model.Principal
	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(capture(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-123", captured.UserID)
	assert.Equal(t, model.RoleStaff, captured.Role)
}

func TestOptionalAuthMiddleware_Anonymous(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		// Invalid token is ignored
		{"invalid token", "Bearer invalid-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				_, ok := GetPrincipal(r.Context())
				assert.False(t, ok)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/optional", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			OptionalAuthMiddleware(newTestJWTService())(handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, handlerCalled)
		})
	}
}

// ============================================
// Helper Functions Tests
// ============================================

func TestGetPrincipal(t *testing.T) {
	p := principal("user-123", "test@example.com", model.RoleCustomer)

	result, ok := GetPrincipal(WithPrincipal(context.Background(), p))
	assert.True(t, ok)
	assert.Equal(t, p, result)

	result, ok = GetPrincipal(context.Background())
	assert.False(t, ok)
	assert.Nil(t, result)

	_, ok = GetPrincipal(WithPrincipal(context.Background(), nil))
	assert.False(t, ok)
}

func TestGetUserID(t *testing.T) {
	ctx := WithPrincipal(context.Background(), principal("user-123", "", model.RoleCustomer))
	assert.Equal(t, "user-123", GetUserID(ctx))
	assert.Empty(t, GetUserID(context.Background()))
}
