package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/eduvoice/eduvoice/internal/auth"
)

// Middleware returns an HTTP middleware that enforces rate limits using the
// provided Limiter. It expects an authenticated learner in the request
// context (set by auth.MemberAuthMiddleware); the learner's ID is the bucket
// key.
//
// Rate-limit headers are always set on the response:
//
//	X-RateLimit-Limit     maximum burst of requests
//	X-RateLimit-Remaining tokens remaining
//	X-RateLimit-Reset     Unix timestamp when the bucket is full again
//
// When the limit is exceeded the middleware responds with HTTP 429 and a JSON
// error body.
func Middleware(limiter *Limiter, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed := limiter.Allow(user.ID)
			limit, remaining, resetAt := limiter.Status(user.ID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Rate limit exceeded. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
