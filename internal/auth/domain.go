package auth

import "time"

// Identity is the signed-in user as reported by the backend.
type Identity struct {
	Username string
	Name     string
	Token    string
}

// SessionRecord is one login kept in user_sessions for auditing.
type SessionRecord struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
