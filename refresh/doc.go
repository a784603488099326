// Package refresh implements one-time-use refresh token rotation with
// family-based theft detection.
//
// # Design
//
// Every login starts a token family: an access/refresh pair sharing a
// family id (fid) that survives across rotations. A refresh token may be
// redeemed at most once. Redemption of an already-used token is conclusive
// evidence of theft: either an attacker replayed a captured token after
// the legitimate client rotated it, or the legitimate client is replaying
// after an attacker rotated first. Both cases collapse trust in the whole
// family, not just the one token.
//
// The used-marker claim and the family-revocation check execute in a single
// Lua script, so two concurrent redemptions of the same token have exactly
// one winner; the loser deterministically observes the reuse and trips the
// family flag.
//
// A revoked family blocks future rotations only. Access tokens already
// issued under it are not individually blacklisted; their short lifetime
// bounds the exposure.
package refresh
