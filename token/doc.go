// Package token signs, verifies, and revokes the bearer tokens used by
// authcore.
//
// # Design
//
// Tokens are JWTs signed with a server-side configured algorithm (HS256 or
// Ed25519). The verifying algorithm is an explicit allow-list passed to the
// parser; it is never derived from the token's own header, which closes the
// classic alg-downgrade attack class.
//
// Every verified token must carry userId, exp, iat, and jti. Lifetime is
// bounded twice: exp-iat must not exceed the configured maximum, and now-iat
// must not exceed it either, which rejects replayed tokens minted by a
// skewed or compromised clock.
//
// Revocation is a store-backed blacklist keyed by jti whose records expire
// exactly when the token would have. [Service.VerifyLocal] skips the
// revocation lookup and is therefore weaker; callers using it must
// re-verify with [Service.Verify] before any state-mutating action.
package token
