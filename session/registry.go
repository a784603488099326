package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/TSavo/authcore/internal/kv"
)

// ErrNotOwner is returned when a caller tries to revoke a session that
// belongs to a different user. Callers should log an unauthorized-access
// event and refuse.
var ErrNotOwner = errors.New("session not owned by caller")

// DefaultIndexGrace is how long the per-user index outlives its newest
// session.
const DefaultIndexGrace = 24 * time.Hour

// TokenRevoker is the slice of the token service the registry needs.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, exp time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Registry tracks active sessions per user. Safe for concurrent use.
type Registry struct {
	store      *kv.Store
	tokens     TokenRevoker
	indexGrace time.Duration
}

func NewRegistry(store *kv.Store, tokens TokenRevoker, indexGrace time.Duration) *Registry {
	if indexGrace <= 0 {
		indexGrace = DefaultIndexGrace
	}
	return &Registry{
		store:      store,
		tokens:     tokens,
		indexGrace: indexGrace,
	}
}

// Track creates the session record for a freshly issued access token and
// adds it to the user's index. Tracking an already-expired token is a no-op.
func (r *Registry) Track(ctx context.Context, userID, jti string, exp time.Time, device, ip string) error {
	now := time.Now()
	ttl := exp.Sub(now)
	if ttl <= 0 {
		return nil
	}

	sess := &Session{
		ID:           jti,
		UserID:       userID,
		Device:       device,
		IP:           ip,
		LastActivity: now.Unix(),
		ExpiresAt:    exp.Unix(),
		CreatedAt:    now.Unix(),
	}

	data, err := encode(sess)
	if err != nil {
		return err
	}
	if err := r.store.SetTTL(ctx, r.sessionKey(jti), data, ttl); err != nil {
		return err
	}

	return r.store.SAdd(ctx, r.userKey(userID), ttl+r.indexGrace, jti)
}

// Touch refreshes lastActivity and re-persists the record with its
// remaining TTL. Returns false when the record is gone.
func (r *Registry) Touch(ctx context.Context, jti string) (bool, error) {
	data, err := r.store.Get(ctx, r.sessionKey(jti))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	sess, err := decode(data)
	if err != nil {
		return false, err
	}

	now := time.Now()
	remaining := sess.Remaining(now)
	if remaining <= 0 {
		_ = r.store.Del(ctx, r.sessionKey(jti))
		return false, nil
	}

	sess.LastActivity = now.Unix()
	updated, err := encode(sess)
	if err != nil {
		return false, err
	}
	if err := r.store.SetTTL(ctx, r.sessionKey(jti), updated, remaining); err != nil {
		return false, err
	}

	return true, nil
}

// List returns the user's live sessions sorted by lastActivity descending,
// flagging the caller's current one. Members whose record is missing,
// expired, or whose token is revoked are pruned from the index as a side
// effect, so the index heals itself on read.
func (r *Registry) List(ctx context.Context, userID, currentJTI string) ([]*Session, error) {
	ids, err := r.store.SMembers(ctx, r.userKey(userID))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	blobs, err := r.store.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sessions := make([]*Session, 0, len(ids))
	var stale []string

	for i, blob := range blobs {
		if blob == nil {
			stale = append(stale, ids[i])
			continue
		}

		sess, decErr := decode(blob)
		if decErr != nil {
			stale = append(stale, ids[i])
			continue
		}
		if sess.Expired(now) {
			stale = append(stale, ids[i])
			continue
		}

		revoked, revErr := r.tokens.IsRevoked(ctx, sess.ID)
		if revErr == nil && revoked {
			stale = append(stale, ids[i])
			continue
		}

		sess.IsCurrent = sess.ID == currentJTI
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		// Prune failures must not fail the read.
		_ = r.store.SRem(ctx, r.userKey(userID), stale...)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity > sessions[j].LastActivity
	})

	return sessions, nil
}

// Revoke ends one session after an ownership check. Returns false when the
// session does not exist; [ErrNotOwner] when it belongs to someone else.
func (r *Registry) Revoke(ctx context.Context, userID, jti string) (bool, error) {
	data, err := r.store.Get(ctx, r.sessionKey(jti))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			_ = r.store.SRem(ctx, r.userKey(userID), jti)
			return false, nil
		}
		return false, err
	}

	sess, err := decode(data)
	if err != nil {
		return false, err
	}
	if sess.UserID != userID {
		return false, ErrNotOwner
	}

	if err := r.tokens.Revoke(ctx, sess.ID, time.Unix(sess.ExpiresAt, 0)); err != nil {
		return false, err
	}
	if err := r.store.Del(ctx, r.sessionKey(jti)); err != nil {
		return false, err
	}
	if err := r.store.SRem(ctx, r.userKey(userID), jti); err != nil {
		return false, err
	}

	return true, nil
}

// RevokeAll ends every session for the user, optionally sparing the
// caller's current one. Index entries with no backing record are removed as
// stale cleanup. Returns the number of sessions revoked.
func (r *Registry) RevokeAll(ctx context.Context, userID string, keepCurrent bool, currentJTI string) (int, error) {
	ids, err := r.store.SMembers(ctx, r.userKey(userID))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if keepCurrent && id == currentJTI {
			continue
		}

		data, getErr := r.store.Get(ctx, r.sessionKey(id))
		if getErr != nil {
			if errors.Is(getErr, kv.ErrNotFound) {
				_ = r.store.SRem(ctx, r.userKey(userID), id)
				continue
			}
			return count, getErr
		}

		sess, decErr := decode(data)
		if decErr != nil {
			_ = r.store.Del(ctx, r.sessionKey(id))
			_ = r.store.SRem(ctx, r.userKey(userID), id)
			continue
		}
		if sess.UserID != userID {
			continue
		}

		if err := r.tokens.Revoke(ctx, sess.ID, time.Unix(sess.ExpiresAt, 0)); err != nil {
			return count, err
		}
		if err := r.store.Del(ctx, r.sessionKey(id)); err != nil {
			return count, err
		}
		if err := r.store.SRem(ctx, r.userKey(userID), id); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func (r *Registry) sessionKey(jti string) string {
	return r.store.Key("session", jti)
}

func (r *Registry) userKey(userID string) string {
	return r.store.Key("user", "sessions", userID)
}
