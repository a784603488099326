package authcore

import (
	"context"
	"errors"
	"strconv"

	internalaudit "github.com/TSavo/authcore/internal/audit"
	internalmetrics "github.com/TSavo/authcore/internal/metrics"
)

// ListSessions returns the user's live sessions, most recently active
// first, flagging the one matching currentJTI so a client can always
// distinguish and protect its own session when revoking others.
func (e *Engine) ListSessions(ctx context.Context, userID, currentJTI string) ([]*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.sessions.List(ctx, userID, currentJTI)
}

// TouchSession refreshes a session's last-activity timestamp. Returns
// false when the session no longer exists.
func (e *Engine) TouchSession(ctx context.Context, jti string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	return e.sessions.Touch(ctx, jti)
}

// RevokeSession ends one of the user's sessions and blacklists its token.
// Attempting to revoke a session owned by someone else is refused and
// audited as an unauthorized access attempt.
func (e *Engine) RevokeSession(ctx context.Context, userID, jti string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	ok, err := e.sessions.Revoke(ctx, userID, jti)
	if err != nil {
		if errors.Is(err, ErrSessionNotOwned) {
			e.emit(ctx, AuditEvent{
				Type:    internalaudit.EventUnauthorizedSession,
				UserID:  userID,
				Details: map[string]string{"jti": jti},
			})
		}
		return false, err
	}
	if !ok {
		return false, nil
	}

	e.metrics.Inc(internalmetrics.MetricSessionRevoked)
	e.emit(ctx, AuditEvent{
		Type:    internalaudit.EventSessionRevoked,
		UserID:  userID,
		Details: map[string]string{"jti": jti},
	})
	return true, nil
}

// RevokeAllSessions ends every session for the user, optionally sparing
// the caller's current one. Returns the number revoked for UI feedback.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string, keepCurrent bool, currentJTI string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.sessions.RevokeAll(ctx, userID, keepCurrent, currentJTI)
	if err != nil {
		return count, err
	}

	if count > 0 {
		e.metrics.Inc(internalmetrics.MetricSessionRevoked)
	}
	e.emit(ctx, AuditEvent{
		Type:   internalaudit.EventSessionRevokedAll,
		UserID: userID,
		Details: map[string]string{
			"count":        strconv.Itoa(count),
			"kept_current": strconv.FormatBool(keepCurrent),
		},
	})
	return count, nil
}
