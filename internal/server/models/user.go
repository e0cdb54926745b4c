package models

import "time"

// User is a tenant account. PasswordHash is tagged by its shape (legacy
// 64-hex SHA-256 or bcrypt) and never leaves the server.
type User struct {
	ID            int64      `json:"id"`
	UserName      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	IsActive      bool       `json:"is_active"`
	IsAdmin       bool       `json:"is_admin"`
	Plan          string     `json:"plan"`
	PlanExpiresAt *time.Time `json:"plan_expires_at"`
	LastLogin     *time.Time `json:"last_login"`
	CreatedAt     time.Time  `json:"created_at"`
}
