package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"toolcrib/internal/apperr"
	"toolcrib/internal/middleware"
	"toolcrib/internal/models"
	"toolcrib/internal/sessions"
)

type loginIn struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginOut struct {
	SessionID string      `json:"session_id"`
	Role      models.Role `json:"role"`
	Username  string      `json:"username"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type roleInUseOut struct {
	RoleInUse   bool        `json:"role_in_use"`
	Role        models.Role `json:"role"`
	LockedSince *time.Time  `json:"locked_since"`
	Message     string      `json:"message"`
}

// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if err := decode(w, r, &in); err != nil || strings.TrimSpace(in.Username) == "" {
		models.WriteProblemCode(w, http.StatusBadRequest, "Bad Request", apperr.ErrInvalidArgument.Code, "username and password are required", nil)
		return
	}
	user, err := h.Auth.Authenticate(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Sessions.CreateSession(r.Context(), user, sessions.ClientMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out.Denied != nil {
		models.WriteJSON(w, http.StatusConflict, roleInUseOut{
			RoleInUse:   true,
			Role:        out.Denied.Role,
			LockedSince: out.Denied.Since,
			Message:     "Role currently in use by another user",
		})
		return
	}
	models.WriteJSON(w, http.StatusOK, loginOut{
		SessionID: out.Session.ID,
		Role:      out.Session.Role,
		Username:  user.Username,
		ExpiresAt: out.Session.ExpiresAt,
	})
}

// GET /api/auth/session-check — всегда 200, результат в valid.
func (h *Handler) SessionCheck(w http.ResponseWriter, r *http.Request) {
	v, err := h.Sessions.CheckSession(r.Context(), r.Header.Get(middleware.HeaderSessionID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, v)
}

// POST /api/auth/logout — повторный logout и неизвестная сессия тоже 200.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(middleware.HeaderSessionID)
	if id != "" {
		err := h.Sessions.ReleaseSession(r.Context(), id, models.EndLogout)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			writeError(w, r, err)
			return
		}
	}
	models.WriteJSON(w, http.StatusOK, messageOut{Message: "Logged out"})
}

// POST /api/auth/release-role-lock
func (h *Handler) ReleaseRoleLock(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Role.Exclusive() {
		models.WriteJSON(w, http.StatusOK, messageOut{Message: "No lock to release"})
		return
	}
	if err := h.Sessions.ReleaseRoleLockIfOwner(r.Context(), p.Role, p.SessionID); err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, messageOut{Message: "Role lock released for " + string(p.Role)})
}

// GET /api/officer/active-sessions
func (h *Handler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sessions.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, list)
}

// GET /api/officer/session-logs?role=&username=&status_filter=ACTIVE|ENDED
func (h *Handler) SessionLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Sessions.SessionLogs(r.Context(), sessions.LogFilter{
		Role:     models.Role(strings.ToUpper(q.Get("role"))),
		Username: strings.TrimSpace(q.Get("username")),
		Status:   sessions.LogStatus(strings.ToUpper(q.Get("status_filter"))),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, list)
}

// GET /api/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.Notifications.ListForUser(r.Context(), principal(r).UserID, 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, list)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
