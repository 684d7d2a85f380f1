package http

import (
	"net/http"

	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/infrastructure/metrics"
	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/IgorGrieder/short-url/pkg/httputils"
	"go.uber.org/zap"
)

type AuthHandler struct {
	svc      *accounts.Service
	sessions *session.Manager
}

func NewAuthHandler(svc *accounts.Service, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{svc: svc, sessions: sessions}
}

// Login sends the browser to the provider. returnUrl rides along as the
// OAuth state and is checked on the way back.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.svc.LoginURL(r.URL.Query().Get("returnUrl")), http.StatusFound)
}

// Callback completes the provider round trip. Rejections answer 401 with
// the reason as plain text and leave no session behind.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.svc.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		if reason, ok := accounts.Reason(err); ok {
			metrics.Logins.WithLabelValues(metrics.LoginRejected).Inc()
			logger.Warn("login rejected",
				zap.String("reason", reason),
				zap.String("provider_error", q.Get("error")),
				zap.Error(err),
			)
			httputils.WriteText(w, http.StatusUnauthorized, reason)
			return
		}
		metrics.Logins.WithLabelValues(metrics.LoginError).Inc()
		logger.Error("login failed", zap.Error(err))
		httputils.WriteText(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.sessions.Issue(w, result.Identity); err != nil {
		metrics.Logins.WithLabelValues(metrics.LoginError).Inc()
		logger.Error("failed to issue session", zap.Error(err))
		httputils.WriteText(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.Logins.WithLabelValues(metrics.LoginSucceeded).Inc()
	if result.Created {
		metrics.AccountsProvisioned.Inc()
	}
	logger.Info("login succeeded",
		zap.Uint64("account_id", result.Identity.AccountID),
		zap.Bool("new_account", result.Created),
	)
	http.Redirect(w, r, result.RedirectTo, http.StatusFound)
}

// Logout drops the session and returns to the landing page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, accounts.DefaultLanding, http.StatusFound)
}
