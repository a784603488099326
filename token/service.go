package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TSavo/authcore/internal/kv"
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrMalformed is returned for tokens that fail to parse or whose
	// signature does not check out.
	ErrMalformed = errors.New("malformed token")
	// ErrMissingClaim is returned when a required claim is absent.
	ErrMissingClaim = errors.New("token missing required claim")
	// ErrLifetimeExceeded is returned when exp-iat or now-iat exceeds the
	// configured maximum lifetime.
	ErrLifetimeExceeded = errors.New("token lifetime exceeded")
	// ErrExpired is returned once now is past exp. Callers typically react
	// by attempting a refresh.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is returned for blacklisted tokens. Callers should force
	// full re-authentication, not a silent refresh.
	ErrRevoked = errors.New("token revoked")
	// ErrWrongType is returned when a token's type claim does not match the
	// operation, e.g. an access token presented for rotation.
	ErrWrongType = errors.New("unexpected token type")
	// ErrStoreUnavailable wraps revocation-store failures.
	ErrStoreUnavailable = kv.ErrUnavailable
)

// SigningMethod selects the signing algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds token service tuning parameters.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	MaxLifetime   time.Duration
	SigningMethod SigningMethod
	Secret        []byte // HS256
	PrivateKey    []byte // Ed25519, raw or PEM
	PublicKey     []byte // Ed25519, raw or PEM
	Issuer        string
	Leeway        time.Duration

	// Warn receives non-fatal diagnostics, e.g. a revocation lookup that
	// failed open. Optional.
	Warn func(string, ...any)

	// OnFailOpen fires when a revocation lookup fails and the token is
	// accepted anyway, so the caller can record a security event for the
	// degraded check. Optional.
	OnFailOpen func(ctx context.Context, jti string, err error)
}

// Claims is the authcore claim set. Extra carries caller-supplied claims
// opaque to this package.
type Claims struct {
	UserID   string            `json:"userId"`
	Type     string            `json:"type"`
	FamilyID string            `json:"fid,omitempty"`
	Extra    map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies bearer tokens and maintains the revocation
// blacklist. Safe for concurrent use.
type Service struct {
	config Config
	store  *kv.Store
}

// NewService validates the signing configuration up front. Missing signing
// material is a configuration error and fatal at startup, never per-request.
func NewService(cfg Config, store *kv.Store) (*Service, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = cfg.RefreshTTL
	}
	if cfg.AccessTTL > cfg.MaxLifetime || cfg.RefreshTTL > cfg.MaxLifetime {
		return nil, errors.New("token TTL exceeds maximum lifetime")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires signing secret")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Service{config: cfg, store: store}, nil
}

// Generate signs a new token of the given type. A fresh unique jti is
// attached; exp is iat plus the type's configured TTL. Generate never
// blocks on the store.
func (s *Service) Generate(userID, typ, familyID string, extra map[string]string) (string, *Claims, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("%w: userId", ErrMissingClaim)
	}

	ttl := s.config.AccessTTL
	if typ == TypeRefresh {
		ttl = s.config.RefreshTTL
	}

	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Type:     typ,
		FamilyID: familyID,
		Extra:    extra,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(s.method(), claims)
	signKey, err := s.signKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}

	return signed, claims, nil
}

// Verify performs the full check: signature against the configured
// algorithm allow-list, required claims, lifetime bounds, and the
// revocation blacklist.
//
// A revocation lookup that fails because the store is down fails open: the
// token is accepted and the failure is reported through Warn and
// OnFailOpen. This is a deliberate availability-over-strictness trade-off;
// short access TTLs bound the exposure.
func (s *Service) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return nil, err
	}

	revoked, err := s.IsRevoked(ctx, claims.ID)
	if err != nil {
		if s.config.Warn != nil {
			s.config.Warn("authcore: revocation check failed open", "jti", claims.ID, "err", err)
		}
		if s.config.OnFailOpen != nil {
			s.config.OnFailOpen(ctx, claims.ID, err)
		}
		return claims, nil
	}
	if revoked {
		return nil, ErrRevoked
	}

	return claims, nil
}

// VerifyLocal performs every check except the revocation lookup. It exists
// for latency-critical gating code that cannot reach the store; it is
// weaker than [Service.Verify] and callers must re-verify fully before any
// state-mutating action.
func (s *Service) VerifyLocal(tokenStr string) (*Claims, error) {
	return s.parse(tokenStr)
}

// Revoke blacklists a jti until its natural expiry. Remaining lifetime is
// clamped at zero: revoking an already-expired token writes nothing, so
// blacklist storage never outgrows the set of live tokens.
func (s *Service) Revoke(ctx context.Context, jti string, exp time.Time) error {
	remaining := time.Until(exp)
	if remaining <= 0 {
		return nil
	}

	return s.store.SetTTL(ctx, s.revokedKey(jti), []byte("1"), remaining)
}

// IsRevoked reports whether a jti is blacklisted. Absence is evidence of
// non-revocation only up to the token's natural expiry.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.store.Exists(ctx, s.revokedKey(jti))
}

func (s *Service) parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method().Alg()}),
		jwt.WithIssuedAt(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}

	switch {
	case claims.UserID == "":
		return nil, fmt.Errorf("%w: userId", ErrMissingClaim)
	case claims.ExpiresAt == nil:
		return nil, fmt.Errorf("%w: exp", ErrMissingClaim)
	case claims.IssuedAt == nil:
		return nil, fmt.Errorf("%w: iat", ErrMissingClaim)
	case claims.ID == "":
		return nil, fmt.Errorf("%w: jti", ErrMissingClaim)
	}

	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > s.config.MaxLifetime {
		return nil, ErrLifetimeExceeded
	}
	if time.Since(claims.IssuedAt.Time) > s.config.MaxLifetime+s.config.Leeway {
		return nil, ErrLifetimeExceeded
	}

	return claims, nil
}

func (s *Service) revokedKey(jti string) string {
	return s.store.Key("revoked", "token", jti)
}

func (s *Service) method() jwt.SigningMethod {
	switch s.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (s *Service) signKey() (interface{}, error) {
	switch s.config.SigningMethod {
	case MethodHS256:
		return s.config.Secret, nil
	default:
		return parseEdPrivateKey(s.config.PrivateKey)
	}
}

func (s *Service) verifyKey() (interface{}, error) {
	switch s.config.SigningMethod {
	case MethodHS256:
		return s.config.Secret, nil
	default:
		return parseEdPublicKey(s.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
