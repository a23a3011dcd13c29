package middleware

import (
	"context"
	"net/http"
	"slices"

	"toolcrib/internal/apperr"
	"toolcrib/internal/models"
	"toolcrib/internal/sessions"
)

const HeaderSessionID = "X-Session-Id"

type SessionChecker interface {
	CheckSession(ctx context.Context, sessionID string) (sessions.Validity, error)
}

// Principal — владелец проверенной сессии.
type Principal struct {
	SessionID string
	UserID    uint
	Username  string
	Role      models.Role
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// SessionAuth пропускает запрос только с живой сессией в X-Session-Id.
func SessionAuth(checker SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := checker.CheckSession(r.Context(), r.Header.Get(HeaderSessionID))
			if err != nil {
				status := http.StatusInternalServerError
				if apperr.Transient(err) {
					status = http.StatusServiceUnavailable
				}
				Entry(r).WithError(err).Warn("session check failed")
				models.WriteProblemCode(w, status, http.StatusText(status), apperr.Code(err), "session check failed", nil)
				return
			}
			if !v.Valid {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "session is missing, expired or ended", nil)
				return
			}
			p := Principal{SessionID: v.SessionID, UserID: v.UserID, Username: v.Username, Role: v.Role}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole — только после SessionAuth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "no session", nil)
				return
			}
			if !slices.Contains(roles, p.Role) {
				models.WriteProblem(w, http.StatusForbidden, "Forbidden", "role "+string(p.Role)+" cannot access this resource", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
