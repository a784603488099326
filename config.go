package authcore

import (
	"errors"
	"time"

	"github.com/TSavo/authcore/internal/rate"
	"github.com/TSavo/authcore/token"
)

// Operation names with built-in rate-limit profiles. Callers may add their
// own operations through [RateLimitConfig.Profiles].
const (
	OpLogin         = "login"
	OpTokenRefresh  = "token_refresh"
	OpPasswordReset = "password_reset"
	OpAPI           = "api"
)

// Config assembles the tuning parameters for every component. Treat a
// Config as immutable once passed to the builder.
type Config struct {
	// Production gates the startup checks that are fatal only in
	// production-like environments, e.g. missing signing material.
	Production bool

	Store     StoreConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Delay     DelayConfig
	Pool      PoolConfig
	Sessions  SessionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// StoreConfig namespaces the shared key-value store.
type StoreConfig struct {
	// KeyPrefix isolates deployments sharing one Redis. Default "ac".
	KeyPrefix string
}

// JWTConfig configures token issuance and verification.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// MaxLifetime bounds exp-iat and now-iat on every verified token.
	// Defaults to RefreshTTL.
	MaxLifetime   time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte // HS256
	PrivateKey    []byte // Ed25519, raw or PEM
	PublicKey     []byte // Ed25519, raw or PEM
	Issuer        string
	Leeway        time.Duration
}

// RateLimitConfig holds the per-operation fixed-window profiles.
type RateLimitConfig struct {
	Enabled  bool
	Profiles map[string]rate.Profile
}

// DelayConfig tunes progressive-delay brute-force mitigation.
type DelayConfig struct {
	Enabled      bool
	Base         time.Duration
	Factor       float64
	Max          time.Duration
	JitterFactor float64
	CounterTTL   time.Duration
}

// PoolConfig sizes the verification worker pool.
type PoolConfig struct {
	// Workers defaults to clamp(NumCPU-1, 2, 4).
	Workers   int
	QueueSize int
}

// SessionConfig tunes the session registry.
type SessionConfig struct {
	// IndexGrace is how long the per-user session index outlives its
	// newest session. Default 24h.
	IndexGrace time.Duration
}

// AuditConfig controls the security event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			KeyPrefix: "ac",
		},
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: string(token.MethodHS256),
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Profiles: DefaultRateProfiles(),
		},
		Delay: DelayConfig{
			Enabled:      true,
			Base:         time.Second,
			Factor:       2,
			Max:          time.Minute,
			JitterFactor: 0.1,
			CounterTTL:   time.Hour,
		},
		Sessions: SessionConfig{
			IndexGrace: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultRateProfiles returns the built-in operation budgets: login 5/60s,
// token refresh 10/60s, password reset 3/h, generic API 100/60s.
func DefaultRateProfiles() map[string]rate.Profile {
	return map[string]rate.Profile{
		OpLogin:         {Limit: 5, Window: time.Minute},
		OpTokenRefresh:  {Limit: 10, Window: time.Minute},
		OpPasswordReset: {Limit: 3, Window: time.Hour},
		OpAPI:           {Limit: 100, Window: time.Minute},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Profiles != nil {
		out.RateLimit.Profiles = make(map[string]rate.Profile, len(cfg.RateLimit.Profiles))
		for op, p := range cfg.RateLimit.Profiles {
			out.RateLimit.Profiles[op] = p
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations that cannot run safely. Failures here
// are fatal at startup; nothing in this package fails per-request over
// configuration.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if c.JWT.AccessTTL > c.JWT.RefreshTTL {
		return errors.New("access TTL must not exceed refresh TTL")
	}

	switch token.SigningMethod(c.JWT.SigningMethod) {
	case token.MethodHS256:
		if len(c.JWT.Secret) == 0 {
			if c.Production {
				return errors.New("production requires a signing secret")
			}
			return errors.New("hs256 requires a signing secret")
		}
		if c.Production && len(c.JWT.Secret) < 32 {
			return errors.New("production signing secret must be at least 32 bytes")
		}
	case token.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires a key pair")
		}
	default:
		return errors.New("unsupported signing method")
	}

	for op, p := range c.RateLimit.Profiles {
		if p.Limit <= 0 || p.Window <= 0 {
			return errors.New("invalid rate profile for operation " + op)
		}
	}

	if c.Delay.Factor != 0 && c.Delay.Factor < 1 {
		return errors.New("delay factor must be >= 1")
	}
	if c.Delay.JitterFactor < 0 || c.Delay.JitterFactor > 1 {
		return errors.New("delay jitter factor must be within [0, 1]")
	}

	return nil
}
