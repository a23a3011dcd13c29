package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"toolcrib/internal/apperr"
	"toolcrib/internal/models"
	"toolcrib/internal/reservation"
)

type submitIn struct {
	ToolID       uint `json:"tool_id"`
	RequestedQty int  `json:"requested_qty"`
}

type rejectIn struct {
	Remarks string `json:"remarks"`
}

// GET /api/operator/tools
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.Reservations.ListTools(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, tools)
}

// POST /api/operator/tool-requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in submitIn
	if err := decode(w, r, &in); err != nil {
		models.WriteProblemCode(w, http.StatusBadRequest, "Bad Request", apperr.ErrInvalidArgument.Code, "invalid body: "+err.Error(), nil)
		return
	}
	req, err := h.Reservations.Submit(r.Context(), principal(r).UserID, in.ToolID, in.RequestedQty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, req)
}

// GET /api/operator/tool-requests — только свои.
func (h *Handler) ListOwnRequests(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, principal(r).UserID)
}

// GET /api/{supervisor,officer}/tool-requests?status=PENDING
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, 0)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, requester uint) {
	f := reservation.RequestFilter{
		Status:      models.RequestStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		RequesterID: requester,
	}
	list, err := h.Reservations.ListRequests(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, list)
}

// POST /api/supervisor/tool-requests/{request_id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reservations.Approve(r.Context(), mux.Vars(r)["request_id"], principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// POST /api/supervisor/tool-requests/{request_id}/reject — тело необязательно.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var in rejectIn
	if err := decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
		models.WriteProblemCode(w, http.StatusBadRequest, "Bad Request", apperr.ErrInvalidArgument.Code, "invalid body: "+err.Error(), nil)
		return
	}
	out, err := h.Reservations.Reject(r.Context(), mux.Vars(r)["request_id"], principal(r).UserID, strings.TrimSpace(in.Remarks))
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// POST /api/operator/tool-requests/{request_id}/collect
func (h *Handler) CollectRequest(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reservations.Collect(r.Context(), mux.Vars(r)["request_id"], principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, out)
}
