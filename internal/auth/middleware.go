package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atelier-erp/atelier/internal/platform/httpx"
	"github.com/atelier-erp/atelier/internal/shared"
)

// ManagerPINHeader carries the manager PIN on destructive requests.
const ManagerPINHeader = "X-Manager-PIN"

// Middleware wires authentication and authorization helpers for HTTP handlers.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// RequireAuth rejects requests without a valid bearer token and stores the actor in context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			httpx.RespondError(w, fmt.Errorf("%w: missing bearer token", shared.ErrUnauthorized))
			return
		}
		actor, err := m.Verifier.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireRole ensures the current actor holds one of roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("role denied", slog.Int64("actor_id", actor.ID), slog.String("role", actor.Role), slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, fmt.Errorf("%w: role %q not allowed", shared.ErrForbidden, actor.Role))
		})
	}
}

// RequireManagerPIN checks the X-Manager-PIN header when a PIN is configured.
func (m Middleware) RequireManagerPIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Verifier.ValidateManagerPIN(r.Header.Get(ManagerPINHeader)) {
			httpx.RespondError(w, fmt.Errorf("%w: manager pin required", shared.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}
