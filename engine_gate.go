package authcore

import (
	"context"
	"strconv"
	"time"

	internalaudit "github.com/TSavo/authcore/internal/audit"
	internalmetrics "github.com/TSavo/authcore/internal/metrics"
	"github.com/TSavo/authcore/internal/rate"
)

// CheckRateLimit runs the fixed-window check for (operation, clientID).
// Unknown operations fall back to the generic API profile. The store
// failing does not block the request: the limiter fails open, the failure
// is audited, and ProgressiveDelay plus token checks still bound damage.
func (e *Engine) CheckRateLimit(ctx context.Context, operation, clientID string) (RateLimitResult, error) {
	if e == nil {
		return RateLimitResult{Allowed: true}, ErrEngineNotReady
	}
	if !e.config.RateLimit.Enabled {
		return RateLimitResult{Allowed: true}, nil
	}

	profile, ok := e.config.RateLimit.Profiles[operation]
	if !ok {
		profile = e.config.RateLimit.Profiles[OpAPI]
	}
	if profile.Limit <= 0 || profile.Window <= 0 {
		return RateLimitResult{Allowed: true}, nil
	}

	result, err := e.limiter.Check(ctx, operation, clientID, profile)
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricRateLimitFailOpen)
		e.emit(ctx, AuditEvent{
			Type: internalaudit.EventStoreUnavailable,
			Details: map[string]string{
				"component": "rate_limiter",
				"operation": operation,
			},
		})
		e.warnf("authcore: rate limiter failed open", "operation", operation, "err", err)
		return result, nil
	}

	if !result.Allowed {
		e.metrics.Inc(internalmetrics.MetricRateLimitHit)
		e.emit(ctx, AuditEvent{
			Type: internalaudit.EventRateLimitExceeded,
			IP:   clientID,
			Details: map[string]string{
				"operation":   operation,
				"limit":       strconv.Itoa(result.Limit),
				"retry_after": result.RetryAfter.String(),
			},
		})
	}

	return result, nil
}

// CheckRateLimitWith is CheckRateLimit with an explicit budget, for
// callers that need a one-off limit rather than a configured operation
// profile.
func (e *Engine) CheckRateLimitWith(ctx context.Context, operation, clientID string, limit int, window time.Duration) (RateLimitResult, error) {
	if e == nil {
		return RateLimitResult{Allowed: true}, ErrEngineNotReady
	}
	if !e.config.RateLimit.Enabled || limit <= 0 || window <= 0 {
		return RateLimitResult{Allowed: true}, nil
	}

	result, err := e.limiter.Check(ctx, operation, clientID, rate.Profile{Limit: limit, Window: window})
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricRateLimitFailOpen)
		e.warnf("authcore: rate limiter failed open", "operation", operation, "err", err)
		return result, nil
	}

	if !result.Allowed {
		e.metrics.Inc(internalmetrics.MetricRateLimitHit)
		e.emit(ctx, AuditEvent{
			Type: internalaudit.EventRateLimitExceeded,
			IP:   clientID,
			Details: map[string]string{
				"operation":   operation,
				"limit":       strconv.Itoa(result.Limit),
				"retry_after": result.RetryAfter.String(),
			},
		})
	}

	return result, nil
}

// ApplyLoginDelay waits out the current progressive delay for ip before
// returning. This is the only deliberately latency-introducing operation
// in the core; it suspends the calling request only, and ctx cancellation
// cuts it short. Returns the delay that was applied.
func (e *Engine) ApplyLoginDelay(ctx context.Context, ip string) (time.Duration, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if !e.config.Delay.Enabled {
		return 0, nil
	}

	applied, err := e.backoff.Apply(ctx, ip)
	if err != nil {
		if ctx.Err() != nil {
			return applied, err
		}
		// Store down: fail open, the remaining layers still hold.
		e.emit(ctx, AuditEvent{
			Type:    internalaudit.EventStoreUnavailable,
			IP:      ip,
			Details: map[string]string{"component": "progressive_delay"},
		})
		e.warnf("authcore: progressive delay failed open", "ip", ip, "err", err)
		return 0, nil
	}

	if applied > 0 {
		e.metrics.Inc(internalmetrics.MetricDelayApplied)
		e.emit(ctx, AuditEvent{
			Type:    internalaudit.EventProgressiveDelay,
			IP:      ip,
			Details: map[string]string{"delay": applied.String()},
		})
	}
	return applied, nil
}

// GetLoginDelay computes the current delay for ip without waiting or
// recording anything, for pre-checks before an attempt is accepted.
func (e *Engine) GetLoginDelay(ctx context.Context, ip string) (time.Duration, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if !e.config.Delay.Enabled {
		return 0, nil
	}
	return e.backoff.GetDelay(ctx, ip)
}

// RecordLoginFailure bumps the consecutive-failure counter for ip and
// returns the delay the next attempt will face. Failures are audited with
// a generic event; nothing in this layer distinguishes a wrong password
// from a nonexistent account.
func (e *Engine) RecordLoginFailure(ctx context.Context, ip, userAgent string) (time.Duration, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	e.emit(ctx, AuditEvent{
		Type:      internalaudit.EventLoginFailure,
		IP:        ip,
		UserAgent: userAgent,
	})

	if !e.config.Delay.Enabled {
		return 0, nil
	}

	next, err := e.backoff.RecordFailure(ctx, ip)
	if err != nil {
		e.emit(ctx, AuditEvent{
			Type:    internalaudit.EventStoreUnavailable,
			IP:      ip,
			Details: map[string]string{"component": "progressive_delay"},
		})
		e.warnf("authcore: failure tracking failed open", "ip", ip, "err", err)
		return 0, nil
	}
	return next, nil
}

// RecordLoginSuccess clears the progressive-delay counter for ip and
// audits the login. Rate-limit windows are left to expire on their own.
func (e *Engine) RecordLoginSuccess(ctx context.Context, userID, ip, userAgent string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.emit(ctx, AuditEvent{
		Type:      internalaudit.EventLoginSuccess,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
	})

	if !e.config.Delay.Enabled {
		return nil
	}
	if err := e.backoff.Reset(ctx, ip); err != nil {
		e.warnf("authcore: delay reset failed", "ip", ip, "err", err)
	}
	return nil
}
