package iam

import (
	"database/sql"
	"time"
)

// Status enumerates user account states. Only active accounts may
// authenticate.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusLocked   Status = "locked"
)

// User represents an identity record in the system
type User struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	RoleID              *int64     `json:"role_id,omitempty"`
	Status              Status     `json:"status"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockoutUntil        *time.Time `json:"lockout_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role represents a named permission bundle
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateUserParams contains parameters for creating a new user
type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	RoleID       *int64
	Status       Status
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// UpdateUserParams contains parameters for a partial user update. Nil fields
// are left unchanged; RoleID with Valid=false clears the role assignment.
type UpdateUserParams struct {
	ID           int64
	Username     *string
	Email        *string
	PasswordHash *string
	RoleID       *sql.NullInt64
	Status       *Status
}
