package authcore

import (
	"errors"

	"github.com/TSavo/authcore/internal/kv"
	"github.com/TSavo/authcore/internal/pool"
	"github.com/TSavo/authcore/internal/rate"
	"github.com/TSavo/authcore/refresh"
	"github.com/TSavo/authcore/session"
	"github.com/TSavo/authcore/token"
)

// Root-level re-exports of the component sentinels, so callers that only
// import authcore can still classify failures with errors.Is. The
// distinctions matter: expired should trigger a silent refresh, revoked
// should force full re-authentication.
var (
	// ErrTokenMalformed covers unparseable tokens and bad signatures.
	ErrTokenMalformed = token.ErrMalformed
	// ErrTokenMissingClaim covers tokens without userId, exp, iat, or jti.
	ErrTokenMissingClaim = token.ErrMissingClaim
	// ErrTokenLifetimeExceeded covers exp-iat or now-iat beyond the maximum.
	ErrTokenLifetimeExceeded = token.ErrLifetimeExceeded
	// ErrTokenExpired means now is past exp; callers should attempt refresh.
	ErrTokenExpired = token.ErrExpired
	// ErrTokenRevoked means the jti is blacklisted; callers should force
	// re-authentication rather than refresh.
	ErrTokenRevoked = token.ErrRevoked
	// ErrTokenWrongType means the token's type claim does not fit the call.
	ErrTokenWrongType = token.ErrWrongType
	// ErrRefreshReuse means an already-redeemed refresh token was replayed;
	// its whole family has been revoked.
	ErrRefreshReuse = refresh.ErrReuseDetected
	// ErrFamilyRevoked means the token family was previously collapsed.
	ErrFamilyRevoked = refresh.ErrFamilyRevoked
	// ErrRateLimited means the fixed-window budget is spent.
	ErrRateLimited = rate.ErrLimited
	// ErrQueueFull signals worker pool backpressure.
	ErrQueueFull = pool.ErrQueueFull
	// ErrWorkerCrashed means the submitted verification task panicked.
	ErrWorkerCrashed = pool.ErrWorkerCrashed
	// ErrPoolClosed means the verification pool was shut down.
	ErrPoolClosed = pool.ErrClosed
	// ErrSessionNotOwned means a caller tried to revoke someone else's
	// session; the attempt is audited.
	ErrSessionNotOwned = session.ErrNotOwner
	// ErrStoreUnavailable wraps shared-store transport failures.
	ErrStoreUnavailable = kv.ErrUnavailable

	// ErrEngineNotReady is returned by engine methods before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
