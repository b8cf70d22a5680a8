package jwt

import (
	"errors"
	"net/http"

	"ride-dispatch/internal/domain/user"
)

// ErrorWriter renders an authentication failure; status is 401 or 403.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

// Middleware validates bearer tokens and injects claims into the request context.
func Middleware(mgr *Manager, onError ErrorWriter, allowedRoles ...user.Role) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, err error) {
			http.Error(w, err.Error(), status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := FromAuthorization(r)
			if err != nil {
				onError(w, r, http.StatusUnauthorized, err)
				return
			}

			claims, err := mgr.ParseAndValidate(raw)
			if err != nil {
				onError(w, r, http.StatusUnauthorized, err)
				return
			}

			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				onError(w, r, http.StatusForbidden, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(InjectClaims(r.Context(), claims)))
		})
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) (*Claims, error) {
	c, ok := FromContext(r.Context())
	if !ok || c == nil {
		return nil, errors.New("request is not authenticated")
	}
	return c, nil
}
