package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	authcore "github.com/TSavo/authcore"
)

// RateLimitOptions tunes the [RateLimit] middleware.
type RateLimitOptions struct {
	// Operation selects the configured profile. Required.
	Operation string
	// Limit and Window, when both set, override the configured profile.
	Limit  int
	Window time.Duration
	// Key derives the client identity from the request. Defaults to the
	// remote IP.
	Key func(*http.Request) string
}

// RateLimit enforces the fixed-window budget for an operation, injecting
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset on every
// response and rejecting with 429 plus Retry-After once the budget is
// spent. The retry hint is deliberate: it does not aid enumeration and
// helps well-behaved clients back off.
func RateLimit(engine *authcore.Engine, opts RateLimitOptions) func(http.Handler) http.Handler {
	keyFn := opts.Key
	if keyFn == nil {
		keyFn = ClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			var (
				result authcore.RateLimitResult
				err    error
			)
			if opts.Limit > 0 && opts.Window > 0 {
				result, err = engine.CheckRateLimitWith(r.Context(), opts.Operation, keyFn(r), opts.Limit, opts.Window)
			} else {
				result, err = engine.CheckRateLimit(r.Context(), opts.Operation, keyFn(r))
			}
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if result.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				if !result.Reset.IsZero() {
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
				}
			}

			if !result.Allowed {
				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the remote IP, stripping the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
