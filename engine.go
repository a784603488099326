package authcore

import (
	"context"
	"time"

	internalaudit "github.com/TSavo/authcore/internal/audit"
	"github.com/TSavo/authcore/internal/delay"
	"github.com/TSavo/authcore/internal/kv"
	internalmetrics "github.com/TSavo/authcore/internal/metrics"
	"github.com/TSavo/authcore/internal/pool"
	"github.com/TSavo/authcore/internal/rate"
	"github.com/TSavo/authcore/refresh"
	"github.com/TSavo/authcore/session"
	"github.com/TSavo/authcore/token"
)

// Engine is the assembled session-security core. Build one with [Builder];
// an Engine is safe for concurrent use and meant to be shared
// process-wide.
type Engine struct {
	config   Config
	store    *kv.Store
	tokens   *token.Service
	rotator  *refresh.Rotator
	sessions *session.Registry
	limiter  *rate.Limiter
	backoff  *delay.Backoff
	pool     *pool.Pool
	audit    *internalaudit.Dispatcher
	metrics  *internalmetrics.Metrics
	warn     func(string, ...any)
}

// Close releases the engine's background resources: the worker pool and
// the audit dispatcher (draining buffered events).
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.pool.Close()
	e.audit.Close()
}

// Ping reports shared-store availability and latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.store.Ping(ctx)
}

// MetricsSnapshot returns a point-in-time copy of all counters for export.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports security events discarded due to dispatcher
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// emit forwards a security event, stamping the time. Never blocks beyond
// the dispatcher's policy.
func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	event.Timestamp = time.Now()
	e.audit.Emit(ctx, event)
}

func (e *Engine) warnf(msg string, args ...any) {
	if e.warn != nil {
		e.warn(msg, args...)
	}
}
