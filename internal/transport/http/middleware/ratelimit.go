package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IgorGrieder/short-url/internal/constants"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/IgorGrieder/short-url/pkg/httputils"
	"go.uber.org/zap"
)

// WindowCounter counts hits per key in the current window.
type WindowCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// RateLimitMiddleware allows limit hits per key per window. Signed-in
// callers are keyed by account, everyone else by client IP. A counter
// failure lets the request through.
func RateLimitMiddleware(counter WindowCounter, limit int) func(http.Handler) http.Handler {
	if counter == nil || limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
			defer cancel()

			count, err := counter.Incr(ctx, key)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(limit) {
				logger.Info("rate limit exceeded", zap.String("key", key), zap.Int64("count", count))
				httputils.WriteAPIError(w, r, constants.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if id, ok := session.IdentityFromContext(r.Context()); ok {
		return "account:" + strconv.FormatUint(id.AccountID, 10)
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return "ip:" + host
	}
	return "ip:unknown"
}
