package admin

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// UserRepository defines the persistence interface for user accounts.
// Lookups of missing rows return an apperr NotFound; duplicate usernames or
// emails return an apperr Conflict.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*User, int, error)
}

// DepartmentRepository defines the persistence interface for departments.
// Names are unique without regard to case.
type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	Update(ctx context.Context, d *Department) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Department, int, error)
}
