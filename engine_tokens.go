package authcore

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/TSavo/authcore/internal/audit"
	internalmetrics "github.com/TSavo/authcore/internal/metrics"
	"github.com/TSavo/authcore/refresh"
	"github.com/TSavo/authcore/token"
)

// GenerateTokenResponse mints an access/refresh pair for an established
// principal and registers the session. The credential check that produced
// userID happens outside this core.
//
// The pair shares a fresh family id; every later rotation of the refresh
// token stays in that family, which is what makes theft detectable.
func (e *Engine) GenerateTokenResponse(ctx context.Context, userID string, extra map[string]string, device, ip string) (*TokenResponse, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	familyID := refresh.NewFamilyID()

	accessToken, accessClaims, err := e.tokens.Generate(userID, token.TypeAccess, familyID, extra)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := e.tokens.Generate(userID, token.TypeRefresh, familyID, extra)
	if err != nil {
		return nil, err
	}

	if err := e.sessions.Track(ctx, userID, accessClaims.ID, accessClaims.ExpiresAt.Time, device, ip); err != nil {
		// The tokens are already valid; a failed session record must not
		// fail the login. The registry self-heals on the next list.
		e.warnf("authcore: session tracking failed", "userId", userID, "err", err)
	} else {
		e.metrics.Inc(internalmetrics.MetricSessionCreated)
	}

	e.metrics.Inc(internalmetrics.MetricTokenIssued)
	e.emit(ctx, AuditEvent{
		Type:   internalaudit.EventTokenIssued,
		UserID: userID,
		IP:     ip,
		Details: map[string]string{
			"jti": accessClaims.ID,
			"fid": familyID,
		},
	})

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(e.config.JWT.AccessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// VerifyToken performs the full verification: signature against the
// configured algorithm allow-list, claim invariants, lifetime bounds, and
// the revocation blacklist. Refresh tokens are additionally checked
// against their family's revocation flag.
func (e *Engine) VerifyToken(ctx context.Context, tokenStr string) (*Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(ctx, tokenStr)
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricTokenVerifyFailure)
		e.emit(ctx, AuditEvent{
			Type:    internalaudit.EventTokenValidationFailed,
			Details: map[string]string{"reason": err.Error()},
		})
		return nil, err
	}

	if claims.Type == token.TypeRefresh && claims.FamilyID != "" {
		revoked, famErr := e.rotator.IsFamilyRevoked(ctx, claims.FamilyID)
		if famErr != nil {
			e.emit(ctx, AuditEvent{
				Type:   internalaudit.EventStoreUnavailable,
				UserID: claims.UserID,
				Details: map[string]string{
					"component": "family_revocation",
					"fid":       claims.FamilyID,
				},
			})
			e.warnf("authcore: family check failed open", "fid", claims.FamilyID, "err", famErr)
		} else if revoked {
			e.metrics.Inc(internalmetrics.MetricTokenVerifyFailure)
			e.emit(ctx, AuditEvent{
				Type:   internalaudit.EventTokenValidationFailed,
				UserID: claims.UserID,
				Details: map[string]string{
					"reason": "family revoked",
					"fid":    claims.FamilyID,
				},
			})
			return nil, ErrFamilyRevoked
		}
	}

	e.metrics.Inc(internalmetrics.MetricTokenVerified)
	return claims, nil
}

// VerifyTokenAsync runs VerifyToken on the bounded worker pool so the
// calling goroutine never performs signature cryptography inline. Queue
// saturation surfaces immediately as [ErrQueueFull].
func (e *Engine) VerifyTokenAsync(ctx context.Context, tokenStr string) (*Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	value, err := e.pool.Submit(ctx, func() (any, error) {
		return e.VerifyToken(ctx, tokenStr)
	})
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			e.metrics.Inc(internalmetrics.MetricPoolRejected)
		}
		return nil, err
	}

	claims, ok := value.(*Claims)
	if !ok {
		return nil, ErrWorkerCrashed
	}
	return claims, nil
}

// VerifyTokenLocal checks everything except revocation: signature, claim
// presence, and lifetime bounds. It never touches the store, which makes
// it suitable for latency-critical request gating, and weaker: callers
// must re-verify with [Engine.VerifyToken] before any state-mutating
// action.
func (e *Engine) VerifyTokenLocal(tokenStr string) (*Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.tokens.VerifyLocal(tokenStr)
}

// RevokeToken blacklists a jti until exp. The record's TTL is the token's
// remaining lifetime, so blacklist storage is bounded by the set of live
// tokens.
func (e *Engine) RevokeToken(ctx context.Context, userID, jti string, exp time.Time) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.tokens.Revoke(ctx, jti, exp); err != nil {
		return err
	}

	e.metrics.Inc(internalmetrics.MetricTokenRevoked)
	e.emit(ctx, AuditEvent{
		Type:    internalaudit.EventTokenRevoked,
		UserID:  userID,
		Details: map[string]string{"jti": jti},
	})
	return nil
}
