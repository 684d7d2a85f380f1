package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORSMiddleware allows credentialed cross-origin calls from the configured
// origins only. With no origins configured every cross-origin request is
// refused.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}

	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
			http.MethodHead,
		},
		AllowedHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
			"X-Requested-With",
			"X-Correlation-Id",
			// OpenTelemetry headers
			"traceparent",
			"tracestate",
			"baggage",
		},
		ExposedHeaders:   []string{"X-Correlation-Id"},
		AllowCredentials: true,
	})

	return c.Handler
}
