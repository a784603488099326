package session

import (
	"encoding/json"
	"time"
)

// Session is the stored record for one live access token.
type Session struct {
	ID           string `json:"id"` // jti of the access token
	UserID       string `json:"userId"`
	Device       string `json:"device,omitempty"`
	IP           string `json:"ip,omitempty"`
	LastActivity int64  `json:"lastActivity"` // unix seconds
	ExpiresAt    int64  `json:"expiresAt"`    // unix seconds
	CreatedAt    int64  `json:"createdAt"`    // unix seconds

	// IsCurrent flags the caller's own session in List output. Never
	// persisted.
	IsCurrent bool `json:"-"`
}

// Expired reports whether the record's own expiry has passed, independent
// of the store TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// Remaining returns the record's remaining lifetime, clamped at zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := time.Unix(s.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
