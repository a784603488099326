package authcore

import (
	"context"
	"errors"

	internalaudit "github.com/TSavo/authcore/internal/audit"
	internalmetrics "github.com/TSavo/authcore/internal/metrics"
)

// RotateRefreshToken redeems a refresh token for a new access/refresh pair
// in the same family and registers the new session.
//
// A replayed (already-redeemed) token returns [ErrRefreshReuse] with no
// pair; as a side effect the whole family is revoked and a high-severity
// event is emitted, because concurrent or late redemption of the same
// refresh token is the theft signature, not a retry to accommodate.
func (e *Engine) RotateRefreshToken(ctx context.Context, refreshToken, device, ip string) (*TokenResponse, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := e.rotator.Rotate(ctx, refreshToken)
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)

		switch {
		case errors.Is(err, ErrRefreshReuse):
			e.metrics.Inc(internalmetrics.MetricRefreshReuseDetected)
			e.metrics.Inc(internalmetrics.MetricFamilyRevoked)
			e.emit(ctx, AuditEvent{
				Type:    internalaudit.EventRefreshReuseDetected,
				IP:      ip,
				Details: map[string]string{"severity": "high"},
			})
			e.emit(ctx, AuditEvent{
				Type: internalaudit.EventFamilyRevoked,
				IP:   ip,
			})
		case errors.Is(err, ErrFamilyRevoked):
			e.emit(ctx, AuditEvent{
				Type:    internalaudit.EventTokenValidationFailed,
				IP:      ip,
				Details: map[string]string{"reason": "family revoked"},
			})
		default:
			e.emit(ctx, AuditEvent{
				Type:    internalaudit.EventTokenValidationFailed,
				IP:      ip,
				Details: map[string]string{"reason": err.Error()},
			})
		}
		return nil, err
	}

	if err := e.sessions.Track(ctx, pair.AccessClaims.UserID, pair.AccessClaims.ID, pair.AccessClaims.ExpiresAt.Time, device, ip); err != nil {
		e.warnf("authcore: session tracking failed", "userId", pair.AccessClaims.UserID, "err", err)
	} else {
		e.metrics.Inc(internalmetrics.MetricSessionCreated)
	}

	e.metrics.Inc(internalmetrics.MetricRefreshSuccess)
	e.emit(ctx, AuditEvent{
		Type:   internalaudit.EventRefreshRotated,
		UserID: pair.AccessClaims.UserID,
		IP:     ip,
		Details: map[string]string{
			"jti": pair.AccessClaims.ID,
			"fid": pair.AccessClaims.FamilyID,
		},
	})

	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(e.config.JWT.AccessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// RevokeTokenFamily collapses a family explicitly, e.g. on logout. Future
// rotations under the family fail; in-flight access tokens run out their
// short lifetime.
func (e *Engine) RevokeTokenFamily(ctx context.Context, userID, familyID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.rotator.RevokeFamily(ctx, familyID); err != nil {
		return err
	}

	e.metrics.Inc(internalmetrics.MetricFamilyRevoked)
	e.emit(ctx, AuditEvent{
		Type:    internalaudit.EventFamilyRevoked,
		UserID:  userID,
		Details: map[string]string{"fid": familyID},
	})
	return nil
}

// IsTokenFamilyRevoked exposes the family flag for collaborators that
// accept refresh tokens through other paths.
func (e *Engine) IsTokenFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	return e.rotator.IsFamilyRevoked(ctx, familyID)
}
