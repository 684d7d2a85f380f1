package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/IgorGrieder/short-url/internal/constants"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/infrastructure/metrics"
	appvalidation "github.com/IgorGrieder/short-url/internal/infrastructure/validation"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/IgorGrieder/short-url/pkg/httputils"
	"go.uber.org/zap"
)

type LinksHandler struct {
	svc      *links.Service
	sessions *session.Manager

	baseURL        string
	redirectStatus int
	asyncClick     bool
	clickTimeout   time.Duration
}

type LinksHandlerOptions struct {
	BaseURL        string
	RedirectStatus int
	AsyncClick     bool
	ClickTimeout   time.Duration
}

func NewLinksHandler(svc *links.Service, sessions *session.Manager, opts LinksHandlerOptions) *LinksHandler {
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = 2 * time.Second
	}
	if opts.RedirectStatus != http.StatusMovedPermanently {
		opts.RedirectStatus = http.StatusFound
	}

	return &LinksHandler{
		svc:            svc,
		sessions:       sessions,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		redirectStatus: opts.RedirectStatus,
		asyncClick:     opts.AsyncClick,
		clickTimeout:   opts.ClickTimeout,
	}
}

type createLinkForm struct {
	OriginalURL string `form:"originalUrl" validate:"required,notblank"`
}

type deleteLinkForm struct {
	ShortCode string `form:"shortCode" validate:"required,shortcode"`
}

type linkResponse struct {
	ShortCode    string     `json:"shortCode"`
	ShortURL     string     `json:"shortUrl"`
	OriginalURL  string     `json:"originalUrl"`
	CreatedAt    time.Time  `json:"createdAt"`
	ClickCount   int64      `json:"clickCount"`
	LastAccessed *time.Time `json:"lastAccessed,omitempty"`
}

type indexResponse struct {
	Authenticated bool           `json:"authenticated"`
	Email         string         `json:"email,omitempty"`
	Links         []linkResponse `json:"links"`
	Flash         string         `json:"flash,omitempty"`
}

// Redirect resolves a short code and sends the browser on. The click is
// recorded off the request path.
func (h *LinksHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("shortCode")

	target, found, err := h.svc.GetOriginalURL(r.Context(), code)
	if err != nil {
		metrics.Redirects.WithLabelValues(metrics.RedirectError).Inc()
		logger.Error("failed to resolve short code", zap.Error(err), zap.String("short_code", code))
		httputils.WriteText(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		metrics.Redirects.WithLabelValues(metrics.RedirectNotFound).Inc()
		httputils.WriteText(w, http.StatusNotFound, "not found")
		return
	}
	metrics.Redirects.WithLabelValues(metrics.RedirectFound).Inc()

	if h.asyncClick {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.clickTimeout)
			defer cancel()
			if err := h.svc.RecordClick(ctx, code); err != nil {
				logger.Warn("failed to record click", zap.Error(err), zap.String("short_code", code))
			}
		}()
	} else if err := h.svc.RecordClick(r.Context(), code); err != nil {
		logger.Warn("failed to record click", zap.Error(err), zap.String("short_code", code))
	}

	w.Header().Set("Location", target)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(h.redirectStatus)
}

// Create handles the link form. The outcome is reported as a flash message
// on the index.
func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, _ := session.IdentityFromContext(r.Context())

	form := createLinkForm{OriginalURL: formValue(w, r, "originalUrl")}
	if err := appvalidation.Validate(form); err != nil {
		metrics.LinksCreated.WithLabelValues("empty").Inc()
		h.flashAndReturn(w, r, constants.FlashEmptyURL)
		return
	}

	code, err := h.svc.CreateShortURL(r.Context(), form.OriginalURL, id.AccountID)
	switch {
	case err == nil:
		metrics.LinksCreated.WithLabelValues("created").Inc()
		logger.Info("short link created", zap.String("short_code", code), zap.Uint64("account_id", id.AccountID))
		h.flashAndReturn(w, r, constants.FlashCreatedPrefix+h.shortURL(code))
	case errors.Is(err, links.ErrInvalidURL):
		metrics.LinksCreated.WithLabelValues("invalid").Inc()
		h.flashAndReturn(w, r, constants.FlashInvalidURL)
	case errors.Is(err, links.ErrExhausted):
		metrics.LinksCreated.WithLabelValues("exhausted").Inc()
		logger.Error("short code space exhausted", zap.Error(err), zap.Uint64("account_id", id.AccountID))
		h.flashAndReturn(w, r, constants.FlashCreateFailed)
	default:
		metrics.LinksCreated.WithLabelValues("error").Inc()
		logger.Error("failed to create short link", zap.Error(err), zap.Uint64("account_id", id.AccountID))
		h.flashAndReturn(w, r, constants.FlashCreateFailed)
	}
}

// Delete handles the delete form. Unknown and foreign codes report the same
// failure.
func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := session.IdentityFromContext(r.Context())

	form := deleteLinkForm{ShortCode: strings.TrimSpace(formValue(w, r, "shortCode"))}
	if err := appvalidation.Validate(form); err != nil {
		h.flashAndReturn(w, r, constants.FlashDeleteFailed)
		return
	}

	outcome, err := h.svc.Delete(r.Context(), form.ShortCode, id.AccountID)
	if err != nil {
		logger.Error("failed to delete short link", zap.Error(err), zap.String("short_code", form.ShortCode))
		h.flashAndReturn(w, r, constants.FlashDeleteFailed)
		return
	}

	if outcome != links.DeleteOutcomeDeleted {
		logger.Info("short link not deleted",
			zap.String("short_code", form.ShortCode),
			zap.Uint64("account_id", id.AccountID),
			zap.Stringer("outcome", outcome),
		)
		h.flashAndReturn(w, r, constants.FlashDeleteFailed)
		return
	}
	h.flashAndReturn(w, r, constants.FlashDeleted)
}

// List returns the caller's links in the API envelope.
func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := session.IdentityFromContext(r.Context())

	items, err := h.svc.GetUserURLs(r.Context(), id.AccountID)
	if err != nil {
		logger.Error("failed to list links", zap.Error(err), zap.Uint64("account_id", id.AccountID))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}
	httputils.WriteAPISuccess(w, r, constants.SuccessLinksFound, h.toResponses(items))
}

// Index returns the landing view: whether the caller is signed in, their
// links and any pending flash message.
func (h *LinksHandler) Index(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{
		Links: []linkResponse{},
		Flash: h.sessions.PopFlash(w, r),
	}

	if id, ok := session.IdentityFromContext(r.Context()); ok {
		items, err := h.svc.GetUserURLs(r.Context(), id.AccountID)
		if err != nil {
			logger.Error("failed to list links", zap.Error(err), zap.Uint64("account_id", id.AccountID))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
			return
		}
		resp.Authenticated = true
		resp.Email = id.Email
		resp.Links = h.toResponses(items)
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessIndex, resp)
}

func (h *LinksHandler) flashAndReturn(w http.ResponseWriter, r *http.Request, msg string) {
	h.sessions.SetFlash(w, msg)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *LinksHandler) shortURL(code string) string {
	return h.baseURL + "/" + code
}

func (h *LinksHandler) toResponses(items []links.Link) []linkResponse {
	out := make([]linkResponse, 0, len(items))
	for _, l := range items {
		out = append(out, linkResponse{
			ShortCode:    l.ShortCode,
			ShortURL:     h.shortURL(l.ShortCode),
			OriginalURL:  l.OriginalURL,
			CreatedAt:    l.CreatedAt,
			ClickCount:   l.ClickCount,
			LastAccessed: l.LastAccessed,
		})
	}
	return out
}

func formValue(w http.ResponseWriter, r *http.Request, key string) string {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	return r.PostFormValue(key)
}
