package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-voyage/internal/auth"
)

const testSecret = "test-secret"

func TestGenerateAndVerifyToken(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	userID, err := auth.VerifyToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	_, err = auth.VerifyToken("other-secret", token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = auth.VerifyToken(testSecret, token)
	assert.Error(t, err)
}

func TestMiddlewarePutsUserIDInContext(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, "user-42", time.Hour)
	require.NoError(t, err)

	var seen string
	handler := auth.Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", seen)
}

func TestMiddlewareRejectsMissingOrMalformedHeader(t *testing.T) {
	handler := auth.Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
