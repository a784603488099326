package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Security event types emitted by the core. Consumers switch on these
// rather than parsing details.
const (
	EventLoginSuccess          = "login_success"
	EventLoginFailure          = "login_failure"
	EventTokenIssued           = "token_issued"
	EventTokenValidationFailed = "token_validation_failed"
	EventTokenRevoked          = "token_revoked"
	EventRefreshRotated        = "refresh_rotated"
	EventRefreshReuseDetected  = "refresh_reuse_detected"
	EventFamilyRevoked         = "token_family_revoked"
	EventRateLimitExceeded     = "rate_limit_exceeded"
	EventProgressiveDelay      = "progressive_delay_applied"
	EventSessionRevoked        = "session_revoked"
	EventSessionRevokedAll     = "session_revoked_all"
	EventUnauthorizedSession   = "unauthorized_session_access"
	EventStoreUnavailable      = "store_unavailable"
)

// Event is the canonical security event record. Emission is best-effort
// and never blocks or fails the caller's critical path.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink receives emitted security events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops security events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes security events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
