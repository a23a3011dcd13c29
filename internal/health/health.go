package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"toolcrib/internal/logs"
)

// Pinger — хранилище, готовность которого проверяет /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes — /healthz (процесс жив) и /readyz (хранилище отвечает).
func RegisterRoutes(r *mux.Router, store Pinger) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logs.Logger.WithError(err).Warn("readiness: store unreachable")
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
