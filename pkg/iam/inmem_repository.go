package iam

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu         sync.RWMutex
	users      map[int64]User
	roles      map[int64]Role
	nextUserID int64
	nextRoleID int64
	now        func() time.Time
}

// NewInMemoryRepository creates a new in-memory IAM repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[int64]User),
		roles: make(map[int64]Role),
		now:   time.Now,
	}
}

func (r *InMemoryRepository) FindByIdentifier(ctx context.Context, identifier string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == identifier || user.Email == identifier {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *InMemoryRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *InMemoryRepository) GetUser(ctx context.Context, id int64) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *InMemoryRepository) FindUsers(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]User, 0, len(r.users))
	for _, user := range r.users {
		result = append(result, user)
	}
	return result, nil
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextUserID++
	now := r.now()
	user := User{
		ID:           r.nextUserID,
		Username:     arg.Username,
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
		RoleID:       arg.RoleID,
		Status:       arg.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.users[user.ID] = user
	return user, nil
}

func (r *InMemoryRepository) UpdateUser(ctx context.Context, arg UpdateUserParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[arg.ID]
	if !ok {
		return ErrUserNotFound
	}

	if arg.Username != nil {
		user.Username = *arg.Username
	}
	if arg.Email != nil {
		user.Email = *arg.Email
	}
	if arg.PasswordHash != nil {
		user.PasswordHash = *arg.PasswordHash
	}
	if arg.RoleID != nil {
		if arg.RoleID.Valid {
			roleID := arg.RoleID.Int64
			user.RoleID = &roleID
		} else {
			user.RoleID = nil
		}
	}
	if arg.Status != nil {
		user.Status = *arg.Status
	}
	user.UpdatedAt = r.now()
	r.users[arg.ID] = user
	return nil
}

func (r *InMemoryRepository) DeleteUser(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *InMemoryRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = r.now()
	r.users[id] = user
	return nil
}

func (r *InMemoryRepository) RecordLoginSuccess(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	now := r.now()
	user.FailedLoginAttempts = 0
	user.LockoutUntil = nil
	user.LastLoginAt = &now
	r.users[id] = user
	return nil
}

func (r *InMemoryRepository) RecordLoginFailure(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.FailedLoginAttempts++
	r.users[id] = user
	return nil
}

func (r *InMemoryRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (r *InMemoryRepository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

func (r *InMemoryRepository) CreateRole(ctx context.Context, name string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextRoleID++
	role := Role{ID: r.nextRoleID, Name: name}
	r.roles[role.ID] = role
	return role, nil
}
