package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"toolcrib/internal/apperr"
	"toolcrib/internal/logs"
	"toolcrib/internal/models"
	"toolcrib/internal/sessions"
)

type checkerFunc func(ctx context.Context, id string) (sessions.Validity, error)

func (f checkerFunc) CheckSession(ctx context.Context, id string) (sessions.Validity, error) {
	return f(ctx, id)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	w.Header().Set("X-User", p.Username)
	w.WriteHeader(http.StatusNoContent)
}

func TestSessionAuthAndRole(t *testing.T) {
	logs.Silence()
	checker := checkerFunc(func(_ context.Context, id string) (sessions.Validity, error) {
		switch id {
		case "sup":
			return sessions.Validity{Valid: true, SessionID: id, UserID: 1, Username: "boss", Role: models.RoleSupervisor}, nil
		case "busy":
			return sessions.Validity{}, apperr.ErrLockTimeout
		}
		return sessions.Validity{}, nil
	})
	h := SessionAuth(checker)(RequireRole(models.RoleSupervisor)(http.HandlerFunc(okHandler)))

	cases := []struct {
		session string
		want    int
	}{
		{"", http.StatusUnauthorized},
		{"expired", http.StatusUnauthorized},
		{"busy", http.StatusServiceUnavailable},
		{"sup", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderSessionID, tc.session)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "session %q", tc.session)
	}

	opOnly := SessionAuth(checker)(RequireRole(models.RoleOperator)(http.HandlerFunc(okHandler)))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderSessionID, "sup")
	rec := httptest.NewRecorder()
	opOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRecovererAndRequestID(t *testing.T) {
	logs.Silence()
	h := RequestID(Recoverer(AccessLog(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))))
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "req-1")
}
