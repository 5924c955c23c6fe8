package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"coralrefuge.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// RequireRole admits requests carrying a valid bearer token with role.
// Missing or invalid tokens get 401, tokens without the role get 403.
func (a *API) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.tokens == nil {
				writeError(w, r, http.StatusServiceUnavailable, "admin_disabled", "admin API is not configured")
				return
			}

			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="coral-refuge"`)
				writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			claims, err := a.tokens.ParseAndValidate(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="coral-refuge", error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
			if !auth.HasRole(ctx, role) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="coral-refuge", error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
