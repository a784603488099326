package authcore

import (
	"io"

	internalaudit "github.com/TSavo/authcore/internal/audit"
	"github.com/TSavo/authcore/internal/rate"
	"github.com/TSavo/authcore/session"
	"github.com/TSavo/authcore/token"
)

// TokenResponse is returned to collaborators on login and rotation.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime, seconds
	TokenType    string `json:"tokenType"` // always "Bearer"
}

// Claims re-exports the verified claim set.
type Claims = token.Claims

// Session re-exports the session record returned by the listing surface.
type Session = session.Session

// RateLimitResult carries the allowed/remaining/reset data callers turn
// into X-RateLimit-* headers.
type RateLimitResult = rate.Result

// AuditEvent is the structured security event record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON lines to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Security event type names, as they appear in [AuditEvent].Type.
const (
	EventLoginSuccess          = internalaudit.EventLoginSuccess
	EventLoginFailure          = internalaudit.EventLoginFailure
	EventTokenIssued           = internalaudit.EventTokenIssued
	EventTokenValidationFailed = internalaudit.EventTokenValidationFailed
	EventTokenRevoked          = internalaudit.EventTokenRevoked
	EventRefreshRotated        = internalaudit.EventRefreshRotated
	EventRefreshReuseDetected  = internalaudit.EventRefreshReuseDetected
	EventFamilyRevoked         = internalaudit.EventFamilyRevoked
	EventRateLimitExceeded     = internalaudit.EventRateLimitExceeded
	EventProgressiveDelay      = internalaudit.EventProgressiveDelay
	EventSessionRevoked        = internalaudit.EventSessionRevoked
	EventSessionRevokedAll     = internalaudit.EventSessionRevokedAll
	EventUnauthorizedSession   = internalaudit.EventUnauthorizedSession
	EventStoreUnavailable      = internalaudit.EventStoreUnavailable
)
