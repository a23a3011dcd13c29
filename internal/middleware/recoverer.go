package middleware

import (
	"net/http"
	"runtime/debug"

	"toolcrib/internal/models"
)

// Recoverer: паника обработчика -> лог со стеком и 500 problem+json.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			Entry(r).WithField("uri", r.RequestURI).Errorf("panic: %v\n%s", rec, debug.Stack())
			models.WriteProblem(w, http.StatusInternalServerError,
				"Internal Server Error",
				"unexpected server error (see logs by reqid)",
				map[string]any{"reqid": GetRequestID(r)})
		}()
		next.ServeHTTP(w, r)
	})
}
