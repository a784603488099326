// Package session tracks active sessions per user: one record per live
// access token, plus a per-user index set used for listing and bulk
// revocation.
//
// # Design
//
// Records live at session:{jti} with a TTL equal to the token's remaining
// lifetime, so the registry can never claim a session whose token has
// expired. The per-user index set outlives its records by a grace period
// (default 24h) to allow lightweight history without unbounded growth, and
// is pruned lazily: whenever a read finds a revoked or missing member, the
// member is dropped from the index as a side effect.
//
// # What this package must NOT do
//
//   - Touch revocation, family, rate, or delay keys directly; token
//     revocation goes through the [TokenRevoker] it was built with.
package session
