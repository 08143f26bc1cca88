package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	appctx "github.com/stackmail/mailbox/backend/internal/context"
	"github.com/stackmail/mailbox/backend/internal/metrics"
)

type limitErrorResponse struct {
	Success   bool             `json:"success"`
	Error     limitErrorDetail `json:"error"`
	Timestamp time.Time        `json:"timestamp"`
}

type limitErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Middleware applies rate limit rules to HTTP handlers
type Middleware struct {
	limiter *Limiter
	logger  *slog.Logger
}

// NewMiddleware creates a rate limiting middleware
func NewMiddleware(limiter *Limiter, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{limiter: limiter, logger: logger}
}

// ByUser limits requests per authenticated user under the given scope.
// Unauthenticated requests fall back to the client IP.
func (m *Middleware) ByUser(scope string, rule Rule) func(http.Handler) http.Handler {
	return m.limit(scope, rule, func(r *http.Request) string {
		if userID, ok := appctx.ExtractUserID(r.Context()); ok {
			return userID
		}
		return clientIP(r)
	})
}

// ByIP limits requests per client IP under the given scope
func (m *Middleware) ByIP(scope string, rule Rule) func(http.Handler) http.Handler {
	return m.limit(scope, rule, clientIP)
}

func (m *Middleware) limit(scope string, rule Rule, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", scope, keyFn(r))

			result, err := m.limiter.Check(r.Context(), key, rule)
			if err != nil {
				// The limiter backend being down should not take the API
				// down with it.
				m.logger.Error("rate limit check failed",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(time.Until(result.ResetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				metrics.RateLimitRejections.WithLabelValues(scope).Inc()
				m.logger.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("path", r.URL.Path),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(limitErrorResponse{
					Success: false,
					Error: limitErrorDetail{
						Code:    "RATE_LIMIT_EXCEEDED",
						Message: "Too many requests, please try again later",
					},
					Timestamp: time.Now().UTC(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the originating client address, honoring proxy headers
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
