package http

import (
	"net/http"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/telemetry"
	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/IgorGrieder/short-url/internal/transport/http/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

var spanNames = map[string]string{
	"GET /health":        "health",
	"GET /metrics":       "metrics",
	"GET /{$}":           "index",
	"GET /api/links":     "links.list",
	"POST /links":        "links.create",
	"POST /links/delete": "links.delete",
	"GET /auth/login":    "auth.login",
	"GET /auth/callback": "auth.callback",
	"/auth/logout":       "auth.logout",
	"GET /{shortCode}":   "links.redirect",
}

type RouterOptions struct {
	ServiceName    string
	AllowedOrigins []string

	EnableCORS    bool
	EnableLogging bool
	EnableMetrics bool

	// CreateLimiter and LoginLimiter are nil when rate limiting is off.
	CreateLimiter middleware.WindowCounter
	CreateLimit   int
	LoginLimiter  middleware.WindowCounter
	LoginLimit    int

	HealthChecks map[string]HealthCheck
	Links        LinksHandlerOptions
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		ServiceName:   "short-url",
		EnableCORS:    true,
		EnableLogging: true,
		EnableMetrics: true,
		Links: LinksHandlerOptions{
			RedirectStatus: http.StatusFound,
			AsyncClick:     true,
			ClickTimeout:   2 * time.Second,
		},
	}
}

func NewRouter(linkService *links.Service, accountService *accounts.Service, sessions *session.Manager, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	healthHandler := NewHealthHandler(opts.HealthChecks)
	linksHandler := NewLinksHandler(linkService, sessions, opts.Links)
	authHandler := NewAuthHandler(accountService, sessions)

	requireSession := middleware.RequireSession(sessions)
	optionalSession := middleware.OptionalSession(sessions)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", healthHandler.Metrics())

	mux.Handle("GET /auth/login", http.HandlerFunc(authHandler.Login))
	mux.Handle("GET /auth/callback", middleware.Chain(
		http.HandlerFunc(authHandler.Callback),
		middleware.RateLimitMiddleware(opts.LoginLimiter, opts.LoginLimit),
	))
	mux.HandleFunc("/auth/logout", authHandler.Logout)

	mux.Handle("GET /{$}", middleware.Chain(http.HandlerFunc(linksHandler.Index), optionalSession))
	mux.Handle("GET /api/links", middleware.Chain(http.HandlerFunc(linksHandler.List), requireSession))
	mux.Handle("POST /links", middleware.Chain(
		http.HandlerFunc(linksHandler.Create),
		requireSession,
		middleware.RateLimitMiddleware(opts.CreateLimiter, opts.CreateLimit),
	))
	mux.Handle("POST /links/delete", middleware.Chain(http.HandlerFunc(linksHandler.Delete), requireSession))

	mux.HandleFunc("GET /{shortCode}", linksHandler.Redirect)

	var innerHandler http.Handler = nameSpanByRoute(mux)
	if opts.EnableCORS {
		innerHandler = middleware.CORSMiddleware(opts.AllowedOrigins)(innerHandler)
	}
	if opts.EnableLogging {
		innerHandler = middleware.LoggingMiddleware(innerHandler)
	}
	if opts.EnableMetrics {
		innerHandler = middleware.MetricsMiddleware(innerHandler)
	}

	otelOptions := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	}

	if telemetry.TracerProvider != nil {
		otelOptions = append(otelOptions, otelhttp.WithTracerProvider(telemetry.TracerProvider))
	}

	return otelhttp.NewHandler(innerHandler, opts.ServiceName, otelOptions...)
}

// nameSpanByRoute renames the server span once the mux has matched, so
// every short code reports under one span name.
func nameSpanByRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		trace.SpanFromContext(r.Context()).SetName(spanName(r))
	})
}

func spanName(r *http.Request) string {
	if name, ok := spanNames[r.Pattern]; ok {
		return name
	}
	if r.Pattern != "" {
		return r.Pattern
	}
	return "HTTP " + r.Method + " unmatched"
}
