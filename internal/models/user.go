// Package models defines data models for users, applications, and sessions.
package models

import "time"

// User represents a user account.
type User struct {
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	TOTPSecret         string    `json:"-"` // encrypted at rest
	ID                 int64     `json:"id"`
	TOTPEnabled        bool      `json:"totp_enabled"`
	IsAdmin            bool      `json:"is_admin"`
	MustChangePassword bool      `json:"must_change_password"`
}

// Token represents an opaque bearer credential issued at login.
type Token struct {
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
}
