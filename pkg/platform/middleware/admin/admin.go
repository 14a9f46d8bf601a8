// Package admin gates the agent's operator routes behind a shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"beacon/pkg/platform/httputil"
)

// TokenHeader carries the admin token. A bearer Authorization header is
// accepted as well.
const TokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests that do not present expectedToken. An
// empty expectedToken disables the check.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expectedToken)
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := presentedToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin request rejected",
					"request_id", middleware.GetReqID(ctx),
					"method", r.Method,
					"path", r.URL.Path,
					"token_present", ok,
				)
				httputil.WriteError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) (string, bool) {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token, true
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && strings.EqualFold(scheme, "Bearer") && token != "" {
		return strings.TrimSpace(token), true
	}
	return "", false
}
