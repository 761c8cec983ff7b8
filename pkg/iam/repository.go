package iam

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
)

// Repository defines the interface for user and role data access. All
// statements behind it must be parameter-bound.
type Repository interface {
	// User lookups
	FindByIdentifier(ctx context.Context, identifier string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindUsers(ctx context.Context) ([]User, error)

	// User mutations
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	UpdateUser(ctx context.Context, arg UpdateUserParams) error
	DeleteUser(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// Login bookkeeping; single-statement updates so the store's row-level
	// atomicity covers concurrent requests for the same identity
	RecordLoginSuccess(ctx context.Context, id int64) error
	RecordLoginFailure(ctx context.Context, id int64) error

	// Role operations
	GetRole(ctx context.Context, id int64) (Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name string) (Role, error)
}
