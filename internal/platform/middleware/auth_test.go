package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geekship/pkg/domain"
)

func TestHMACValidator_RoundTrip(t *testing.T) {
	validator := NewHMACValidator("test-key")
	uid := domain.NewUserID()

	token, err := validator.SignToken(uid, time.Minute)
	require.NoError(t, err)

	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uid, claims.UserID)
}

func TestHMACValidator_RejectsExpired(t *testing.T) {
	validator := NewHMACValidator("test-key")
	token, err := validator.SignToken(domain.NewUserID(), -time.Minute)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

func TestHMACValidator_RejectsWrongKey(t *testing.T) {
	token, err := NewHMACValidator("key-a").SignToken(domain.NewUserID(), time.Minute)
	require.NoError(t, err)

	_, err = NewHMACValidator("key-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	validator := NewHMACValidator("test-key")
	logger := slog.New(slog.DiscardHandler)

	var seen domain.UserID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAuth(validator, logger)(next)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token attaches caller", func(t *testing.T) {
		uid := domain.NewUserID()
		token, err := validator.SignToken(uid, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, uid, seen)
	})
}
