package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/TSavo/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified claims attached by [Guard].
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return claims, ok
}

// Guard requires a valid bearer access token. Verification runs on the
// engine's worker pool; pool backpressure surfaces as 503 rather than
// queueing unbounded work. On success the session's last-activity is
// refreshed and the claims are attached to the request context.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.VerifyTokenAsync(r.Context(), tokenStr)
			if err != nil {
				if errors.Is(err, authcore.ErrQueueFull) {
					http.Error(w, "service busy", http.StatusServiceUnavailable)
					return
				}
				// Generic message: the status split between expired,
				// revoked, and malformed belongs to the client flow, not
				// the response body.
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if _, err := engine.TouchSession(r.Context(), claims.ID); err != nil {
				// Last-activity is best effort; the token already proved
				// itself.
				_ = err
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
