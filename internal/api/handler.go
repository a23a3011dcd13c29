// Package api — HTTP-поверхность: вход/выход, заявки операторов,
// решения супервизора, просмотр для офицера.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"toolcrib/internal/middleware"
	"toolcrib/internal/models"
	"toolcrib/internal/reservation"
	"toolcrib/internal/sessions"
)

type Sessions interface {
	CreateSession(ctx context.Context, user *models.User, meta sessions.ClientMeta) (sessions.Outcome, error)
	CheckSession(ctx context.Context, sessionID string) (sessions.Validity, error)
	ReleaseSession(ctx context.Context, sessionID string, reason models.EndReason) error
	ReleaseRoleLockIfOwner(ctx context.Context, role models.Role, sessionID string) error
	ActiveSessions(ctx context.Context) ([]models.Session, error)
	SessionLogs(ctx context.Context, f sessions.LogFilter) ([]models.SessionLog, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

type Reservations interface {
	Submit(ctx context.Context, requesterID, toolID uint, qty int) (*models.UsageRequest, error)
	Approve(ctx context.Context, requestID string, reviewerID uint) (*reservation.Approval, error)
	Reject(ctx context.Context, requestID string, reviewerID uint, remarks string) (*models.UsageRequest, error)
	Collect(ctx context.Context, requestID string, requesterID uint) (*models.UsageRequest, error)
	ListRequests(ctx context.Context, f reservation.RequestFilter) ([]models.UsageRequest, error)
	ListTools(ctx context.Context) ([]models.Tool, error)
}

type Notifications interface {
	ListForUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
}

type Handler struct {
	Sessions      Sessions
	Auth          Authenticator
	Reservations  Reservations
	Notifications Notifications
}

// RegisterRoutes вешает /api/... на r.
func RegisterRoutes(r *mux.Router, h *Handler) {
	api := r.PathPrefix("/api").Subrouter()

	// 1) auth — без обязательной сессии
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	auth.HandleFunc("/session-check", h.SessionCheck).Methods(http.MethodGet)
	auth.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.SessionAuth(h.Sessions))
	authed.HandleFunc("/auth/release-role-lock", h.ReleaseRoleLock).Methods(http.MethodPost)
	authed.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)

	// 2) оператор
	op := authed.PathPrefix("/operator").Subrouter()
	op.Use(middleware.RequireRole(models.RoleOperator))
	op.HandleFunc("/tools", h.ListTools).Methods(http.MethodGet)
	op.HandleFunc("/tool-requests", h.SubmitRequest).Methods(http.MethodPost)
	op.HandleFunc("/tool-requests", h.ListOwnRequests).Methods(http.MethodGet)
	op.HandleFunc("/tool-requests/{request_id}/collect", h.CollectRequest).Methods(http.MethodPost)

	// 3) супервизор — единственный, кто решает по заявкам
	sup := authed.PathPrefix("/supervisor").Subrouter()
	sup.Use(middleware.RequireRole(models.RoleSupervisor))
	sup.HandleFunc("/tool-requests", h.ListRequests).Methods(http.MethodGet)
	sup.HandleFunc("/tool-requests/{request_id}/approve", h.ApproveRequest).Methods(http.MethodPost)
	sup.HandleFunc("/tool-requests/{request_id}/reject", h.RejectRequest).Methods(http.MethodPost)

	// 4) офицер — только чтение
	off := authed.PathPrefix("/officer").Subrouter()
	off.Use(middleware.RequireRole(models.RoleOfficer))
	off.HandleFunc("/active-sessions", h.ActiveSessions).Methods(http.MethodGet)
	off.HandleFunc("/session-logs", h.SessionLogs).Methods(http.MethodGet)
	off.HandleFunc("/tool-requests", h.ListRequests).Methods(http.MethodGet)
}

func principal(r *http.Request) middleware.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type messageOut struct {
	Message string `json:"message"`
}
