package models

import "time"

// Session is the authenticated identity for one user. It is owned by the
// session store; every other component holds only a read reference.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAuthenticated reports whether the session carries a usable bearer
// token. A session past its provider expiry is as good as absent; a zero
// ExpiresAt means the provider reported no expiry.
func (s *Session) IsAuthenticated() bool {
	if s == nil || s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}
