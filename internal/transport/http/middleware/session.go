package middleware

import (
	"errors"
	"net/http"

	"github.com/IgorGrieder/short-url/internal/constants"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/IgorGrieder/short-url/pkg/httputils"
	"go.uber.org/zap"
)

// RequireSession rejects requests without a valid session cookie with the
// UNAUTHORIZED envelope.
func RequireSession(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := sessions.Load(w, r)
			if err != nil {
				logRejectedSession(r, err)
				httputils.WriteAPIError(w, r, constants.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalSession attaches the identity when a valid session is present and
// lets anonymous requests through.
func OptionalSession(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := sessions.Load(w, r)
			if err != nil {
				logRejectedSession(r, err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), id)))
		})
	}
}

func logRejectedSession(r *http.Request, err error) {
	if errors.Is(err, session.ErrNoSession) {
		return
	}
	logger.Debug("session cookie rejected", zap.Error(err), zap.String("path", r.URL.Path))
}
