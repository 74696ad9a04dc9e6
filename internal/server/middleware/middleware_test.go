package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimx/zimx-sync/internal/server/handlers"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, testLogger)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"))

	// Other keys have their own bucket.
	assert.True(t, rl.Allow("5.6.7.8"))
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond, testLogger)
	defer rl.Stop()

	require.True(t, rl.Allow("1.2.3.4"))
	require.False(t, rl.Allow("1.2.3.4"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(2, time.Minute, testLogger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	jwtConfig := handlers.JWTConfig{
		Secret:         []byte("test-secret-key-at-least-32-bytes!!"),
		AccessTokenTTL: time.Hour,
	}

	var gotUserID, gotUsername string
	handler := AuthMiddleware(testLogger, jwtConfig)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID, _ = r.Context().Value(handlers.UserIDKey).(string)
			gotUsername, _ = r.Context().Value(handlers.UsernameKey).(string)
			w.WriteHeader(http.StatusOK)
		}))

	token, _, err := handlers.GenerateAccessToken(jwtConfig, "user-1", "alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	assert.Equal(t, "user-1", gotUserID)
	assert.Equal(t, "alice", gotUsername)
}
