package refresh

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/TSavo/authcore/internal/kv"
	"github.com/TSavo/authcore/token"
)

var (
	// ErrReuseDetected is returned when a refresh token is redeemed a second
	// time. The token's whole family has been revoked as a side effect.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrFamilyRevoked is returned when the token's family has previously
	// been marked compromised or logged out.
	ErrFamilyRevoked = errors.New("token family revoked")
)

const (
	claimStatusOK             int64 = 0
	claimStatusFamilyRevoked  int64 = 1
	claimStatusAlreadyClaimed int64 = 2
)

// claimScript atomically checks the family flag and claims the used-marker
// for a jti. On a second claim it trips the family flag in the same
// execution, so reuse detection and family collapse are one linearizable
// transition.
const claimScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 1
end
local ok = redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[1])
if not ok then
  redis.call("SET", KEYS[2], "1")
  return 2
end
return 0
`

var claimLua = redis.NewScript(claimScript)

// Pair is the result of a successful rotation.
type Pair struct {
	AccessToken   string
	RefreshToken  string
	AccessClaims  *token.Claims
	RefreshClaims *token.Claims
}

// Rotator redeems refresh tokens. Safe for concurrent use; rotation is
// serialized per token by the store's atomic claim semantics.
type Rotator struct {
	tokens *token.Service
	store  *kv.Store
}

func NewRotator(tokens *token.Service, store *kv.Store) *Rotator {
	return &Rotator{
		tokens: tokens,
		store:  store,
	}
}

// NewFamilyID mints a family id for a fresh login. ULIDs keep families
// sortable by issuance time, which makes incident forensics cheap.
func NewFamilyID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Rotate redeems oldToken for a new access/refresh pair carrying the same
// family id.
//
// Failure modes, in check order: any token.Service verification error;
// [token.ErrWrongType] for non-refresh tokens; [ErrFamilyRevoked] when the
// family flag is set; [ErrReuseDetected] when this exact token was already
// redeemed, which also revokes the family.
func (r *Rotator) Rotate(ctx context.Context, oldToken string) (*Pair, error) {
	claims, err := r.tokens.Verify(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != token.TypeRefresh {
		return nil, token.ErrWrongType
	}
	if claims.FamilyID == "" {
		return nil, fmt.Errorf("%w: fid", token.ErrMissingClaim)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil, token.ErrExpired
	}

	status, err := r.claimUsed(ctx, claims.ID, claims.FamilyID, remaining)
	if err != nil {
		return nil, err
	}
	switch status {
	case claimStatusFamilyRevoked:
		return nil, ErrFamilyRevoked
	case claimStatusAlreadyClaimed:
		return nil, ErrReuseDetected
	}

	// The old refresh token is spent regardless of what happens below.
	if err := r.tokens.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	accessToken, accessClaims, err := r.tokens.Generate(claims.UserID, token.TypeAccess, claims.FamilyID, claims.Extra)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshClaims, err := r.tokens.Generate(claims.UserID, token.TypeRefresh, claims.FamilyID, claims.Extra)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
	}, nil
}

// IsFamilyRevoked reports whether the family flag is set. Code paths that
// accept refresh tokens consult this in addition to per-token checks, since
// revoking a family does not individually blacklist tokens already issued
// under it.
func (r *Rotator) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	return r.store.Exists(ctx, r.familyKey(familyID))
}

// RevokeFamily marks a family compromised or logged out. The flag has no
// expiry; it persists until ClearFamily.
func (r *Rotator) RevokeFamily(ctx context.Context, familyID string) error {
	return r.store.SetTTL(ctx, r.familyKey(familyID), []byte("1"), 0)
}

// ClearFamily removes a family revocation flag.
func (r *Rotator) ClearFamily(ctx context.Context, familyID string) error {
	return r.store.Del(ctx, r.familyKey(familyID))
}

func (r *Rotator) claimUsed(ctx context.Context, jti, familyID string, ttl time.Duration) (int64, error) {
	keys := []string{r.usedKey(jti), r.familyKey(familyID)}
	result, err := r.store.Eval(ctx, claimLua, keys, ttl.Milliseconds())
	if err != nil {
		return 0, err
	}

	status, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid claim script response", kv.ErrUnavailable)
	}
	return status, nil
}

func (r *Rotator) usedKey(jti string) string {
	return r.store.Key("refresh", "used", jti)
}

func (r *Rotator) familyKey(familyID string) string {
	return r.store.Key("refresh", "family", familyID)
}
