package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"akar-rag/internal/admission"
)

// Admitter decides whether a client may proceed.
type Admitter interface {
	Decide(clientID string) admission.Decision
	Limit() int
}

// KeyFunc extracts the client identifier used for admission.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the remote network address. With trustProxy the
// first hop of X-Forwarded-For wins, for deployments behind a reverse proxy.
func ClientIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first := strings.TrimSpace(strings.Split(xff, ",")[0])
				if first != "" {
					return first
				}
			}
			if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
				return xr
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil || host == "" {
			if r.RemoteAddr != "" {
				return r.RemoteAddr
			}
			return "unknown"
		}
		return host
	}
}

func Admission(a Admitter, keyFn KeyFunc, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := keyFn(r)
			ctx := WithClientID(r.Context(), clientID)

			d := a.Decide(clientID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(a.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				slog.WarnContext(ctx, "rate limit exceeded", "retry_after_seconds", retry)

				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				resp := map[string]interface{}{
					"error": map[string]string{
						"code":    "RATE_LIMITED",
						"message": fmt.Sprintf("Rate limit exceeded: max %d requests per %ds.", a.Limit(), int(window.Seconds())),
					},
					"correlationId": GetCorrelationID(ctx),
				}
				if err := json.NewEncoder(w).Encode(resp); err != nil {
					slog.Error("failed to encode error response", "error", err)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
