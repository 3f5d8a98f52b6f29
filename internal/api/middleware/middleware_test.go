package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestControlAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	handler := NewControlAuth(string(hash), zerolog.Nop()).RequireToken(ok)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusNoContent},
		{"lowercase scheme", "bearer s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rooms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestControlAuthDisabled(t *testing.T) {
	auth := NewControlAuth("", zerolog.Nop())
	require.False(t, auth.Enabled())

	rec := httptest.NewRecorder()
	auth.RequireToken(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pause", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/rooms", normalizePath("/rooms"))
	require.Equal(t, "/rooms/", normalizePath("/rooms/"))
	require.Equal(t, "/rooms/:id", normalizePath("/rooms/abc"))
	require.Equal(t, "/rooms/:id", normalizePath("/rooms/abc/messages"))
	require.Equal(t, "/rooms/:id/kick", normalizePath("/rooms/abc/kick"))
	require.Equal(t, "/pause", normalizePath("/pause"))
}

func TestFindLimitPrefersLongestPattern(t *testing.T) {
	rl := NewRateLimiter(nil, map[string]RateLimit{
		"POST /rooms":        {Requests: 10, Window: time.Minute},
		"POST /rooms/x/kick": {Requests: 1, Window: time.Minute},
	}, zerolog.Nop())

	pattern, limit, found := rl.findLimit(httptest.NewRequest(http.MethodPost, "/rooms/x/kick", nil))
	require.True(t, found)
	require.Equal(t, "POST /rooms/x/kick", pattern)
	require.Equal(t, 1, limit.Requests)

	_, _, found = rl.findLimit(httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.False(t, found)
}

func TestRateLimiterWithoutRedisPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	rl.Middleware(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", RealIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", RealIP(req))
}

func TestRequireJSONAndBodyLimit(t *testing.T) {
	handler := MaxBodySize(16)(RequireJSON(ok))

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"agents":["a","b"],"pad":"xxxx"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/pause", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
