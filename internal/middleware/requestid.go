package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"toolcrib/internal/logs"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	principalKey
)

const HeaderRequestID = "X-Request-Id"

// RequestID принимает id от клиента или выдаёт новый и кладёт его в контекст.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func GetRequestID(r *http.Request) string {
	s, _ := r.Context().Value(requestIDKey).(string)
	return s
}

// Entry — логгер запроса с reqid и, если есть, пользователем сессии.
func Entry(r *http.Request) *logrus.Entry {
	e := logs.Logger.WithField("reqid", GetRequestID(r))
	if p, ok := PrincipalFrom(r.Context()); ok {
		e = e.WithFields(logrus.Fields{"user_id": p.UserID, "role": p.Role})
	}
	return e
}
