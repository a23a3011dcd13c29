package api

import (
	"net/http"

	"toolcrib/internal/apperr"
	"toolcrib/internal/middleware"
	"toolcrib/internal/models"
)

var statusByCode = map[string]int{
	apperr.ErrNotFound.Code:           http.StatusNotFound,
	apperr.ErrAlreadyProcessed.Code:   http.StatusConflict,
	apperr.ErrAlreadyClaimed.Code:     http.StatusConflict,
	apperr.ErrInsufficientStock.Code:  http.StatusConflict,
	apperr.ErrInvalidQuantity.Code:    http.StatusBadRequest,
	apperr.ErrInvalidTransition.Code:  http.StatusConflict,
	apperr.ErrNotOwner.Code:           http.StatusForbidden,
	apperr.ErrLockTimeout.Code:        http.StatusServiceUnavailable,
	apperr.ErrInvalidCredentials.Code: http.StatusUnauthorized,
	apperr.ErrInvalidArgument.Code:    http.StatusBadRequest,
}

// writeError: apperr -> статус по коду, всё остальное -> 500 без деталей наружу.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		middleware.Entry(r).WithError(err).Error("request failed")
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error",
			"unexpected server error (see logs by reqid)",
			map[string]any{"reqid": middleware.GetRequestID(r)})
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	models.WriteProblemCode(w, status, http.StatusText(status), code, err.Error(), nil)
}
