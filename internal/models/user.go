package models

import "time"

// User represents a server account. PasswordHash is a bcrypt hash; the
// plaintext password never touches storage.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
}
