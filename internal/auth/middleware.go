package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/mind-engage/testportal/internal/rbac"
)

// JWTMiddleware validates the session token and puts role and subject into
// the request context. The token is read from the Authorization header, or
// from ?token= for websocket upgrades where browsers cannot set headers.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			c, err := a.Parse(tok)
			if err != nil {
				unauthorized(w, "invalid or expired session")
				return
			}
			ctx := rbac.WithRole(r.Context(), c.Role)
			ctx = rbac.WithSubject(ctx, c.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if websocket.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
