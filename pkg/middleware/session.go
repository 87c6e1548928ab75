// Package middleware provides the two composable authorization wrappers:
// session requirement, then org-permission requirement. They are always
// applied in that order.
package middleware

import (
	"net/http"

	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/contextkeys"
	"github.com/linkdeck/linkdeck/pkg/httputil"
	"github.com/linkdeck/linkdeck/pkg/rbac"
)

// RequireSession validates the caller's session and attaches the verified
// user plus a fresh permission memo to the request context. The validator
// runs once per request.
func RequireSession(validator *auth.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := validator.Validate(r)
			if !result.Valid {
				httputil.WriteUnauthorized(w, "valid session required")
				return
			}

			ctx := contextkeys.WithUser(r.Context(), result.User)
			ctx = contextkeys.WithMemo(ctx, rbac.NewMemo())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser extracts the verified user from the request context
func GetUser(r *http.Request) *auth.User {
	user, ok := r.Context().Value(contextkeys.UserKey).(*auth.User)
	if !ok {
		return nil
	}
	return user
}
