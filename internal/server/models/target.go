package models

import "time"

// Target is a host a tenant may load-test once VerifiedAt is set.
type Target struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Host       string     `json:"host"`
	Token      string     `json:"verification_token"`
	VerifiedAt *time.Time `json:"verified_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (t *Target) Verified() bool { return t.VerifiedAt != nil }
