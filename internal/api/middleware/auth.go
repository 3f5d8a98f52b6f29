package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ControlAuth guards the mutating control routes with a bearer token
// checked against a bcrypt hash. An empty hash leaves the routes open,
// which config only allows outside production.
type ControlAuth struct {
	hash   []byte
	logger zerolog.Logger
}

// NewControlAuth creates the middleware for tokenHash (bcrypt).
func NewControlAuth(tokenHash string, logger zerolog.Logger) *ControlAuth {
	return &ControlAuth{
		hash:   []byte(strings.TrimSpace(tokenHash)),
		logger: logger,
	}
}

// Enabled reports whether a token is required.
func (m *ControlAuth) Enabled() bool {
	return len(m.hash) > 0
}

// RequireToken rejects requests without a valid Authorization header.
func (m *ControlAuth) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword(m.hash, []byte(token)); err != nil {
			m.logger.Warn().
				Str("type", "security").
				Str("event", "bad_control_token").
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Msg("rejected control request")
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
