package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/audit"
)

type contextKey string

const UserIDContextKey contextKey = "userID"

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDContextKey).(string); ok {
		return userID
	}
	return ""
}

// AuthMiddleware guards the engine's internal surface. The application
// gateway authenticates end users itself, then forwards requests with the
// shared service token and the resolved user id.
type AuthMiddleware struct {
	gatewayToken string
}

func NewAuthMiddleware(gatewayToken string) *AuthMiddleware {
	return &AuthMiddleware{gatewayToken: gatewayToken}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.gatewayToken)) != 1 {
			audit.Log(audit.Event{Type: audit.EventAuthFailure})
			log.Warn().Str("path", r.URL.Path).Msg("auth middleware: invalid gateway token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid service token",
			})
			return
		}

		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing user identity",
			})
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
