package domain

import "time"

// Session is the authenticated credential state for the current user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token should be treated as expired at
// now, counting margin before the stated expiry.
func (s Session) Expired(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(s.ExpiresAt)
}

func (s Session) IsZero() bool {
	return s.AccessToken == "" || s.UserID == ""
}
