package model

import "time"

// User is the authenticated principal as reported by the auth service
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an active login: a short-lived access token and the refresh token that renews it
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry returns the access token expiry time
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// IsExpired reports whether the access token expires within the given margin
func (s *Session) IsExpired(margin time.Duration) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(margin).After(s.Expiry())
}
