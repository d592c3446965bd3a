package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// SessionCookie is the cookie the UI may carry the token in
const SessionCookie = "auth_session"

// TokenFromRequest returns the token presented by r: the session cookie first,
// then a Bearer Authorization header, then the token query parameter (browsers
// cannot set headers on WebSocket upgrades).
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// Valid compares presented against expected in constant time
func Valid(presented, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// Middleware rejects requests that do not present the token returned by
// getToken. An empty token disables authentication. Paths in open are always
// let through.
func Middleware(getToken func() string, open ...string) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(open))
	for _, p := range open {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := ""
			if getToken != nil {
				expected = getToken()
			}
			if expected == "" || public[r.URL.Path] || Valid(TokenFromRequest(r), expected) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"code":    "unauthorized",
					"message": "missing or invalid token",
				},
			})
		})
	}
}
