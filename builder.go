package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

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

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	auditSink AuditSink
	warn      func(string, ...any)
	built     bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is cloned;
// later mutation of cfg does not affect the builder.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for security events. Without a sink,
// events are dispatched to a [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithWarnFunc sets the hook for non-event diagnostics, e.g. a revocation
// lookup that failed open. Optional.
func (b *Builder) WithWarnFunc(warn func(string, ...any)) *Builder {
	b.warn = warn
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. Configuration
// problems surface here, at startup, never per-request.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	b.built = true

	store := kv.New(b.redis, b.config.Store.KeyPrefix)

	metrics := internalmetrics.New(internalmetrics.Config{
		Enabled: b.config.Metrics.Enabled,
	})

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    b.config.Audit.Enabled,
		BufferSize: b.config.Audit.BufferSize,
		DropIfFull: b.config.Audit.DropIfFull,
	}, b.auditSink)

	tokens, err := token.NewService(token.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		MaxLifetime:   b.config.JWT.MaxLifetime,
		SigningMethod: token.SigningMethod(b.config.JWT.SigningMethod),
		Secret:        b.config.JWT.Secret,
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
		Warn:          b.warn,
		// A revocation lookup failing open still must leave an audit trail.
		OnFailOpen: func(ctx context.Context, jti string, err error) {
			dispatcher.Emit(ctx, internalaudit.Event{
				Timestamp: time.Now(),
				Type:      internalaudit.EventStoreUnavailable,
				Details: map[string]string{
					"component": "token_revocation",
					"jti":       jti,
				},
			})
		},
	}, store)
	if err != nil {
		return nil, err
	}

	verifyPool := pool.New(pool.Config{
		Workers:   b.config.Pool.Workers,
		QueueSize: b.config.Pool.QueueSize,
		OnCrash: func() {
			metrics.Inc(internalmetrics.MetricPoolWorkerCrashed)
		},
	})

	engine := &Engine{
		config:   b.config,
		store:    store,
		tokens:   tokens,
		rotator:  refresh.NewRotator(tokens, store),
		sessions: session.NewRegistry(store, tokens, b.config.Sessions.IndexGrace),
		limiter:  rate.New(store),
		backoff: delay.New(store, delay.Config{
			Base:         b.config.Delay.Base,
			Factor:       b.config.Delay.Factor,
			Max:          b.config.Delay.Max,
			JitterFactor: b.config.Delay.JitterFactor,
			CounterTTL:   b.config.Delay.CounterTTL,
		}),
		pool:    verifyPool,
		audit:   dispatcher,
		metrics: metrics,
		warn:    b.warn,
	}

	return engine, nil
}
