package admin

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// User maps to the app_user table.
type User struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	FullName     string        `db:"full_name" json:"full_name"`
	Username     string        `db:"username" json:"username"`
	Email        string        `db:"email" json:"email"`
	PasswordHash string        `db:"password_hash" json:"-"`
	Roles        []policy.Role `db:"roles" json:"roles"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Ownership returns the policy view of the account.
func (u *User) Ownership() policy.Ownership {
	return policy.Ownership{SubjectID: u.ID}
}

func (u *User) roleNames() []string {
	names := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		names[i] = string(r)
	}
	return names
}

// Department maps to the department table.
type Department struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RegisterRequest is the public sign-up payload.
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,notblank,max=100"`
	Username string `json:"username" validate:"required,notblank,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=Admin Doctor Patient"`
}

// LoginRequest exchanges credentials for a session token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is the login response.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// UpdateUserRequest changes an account. Absent fields keep their value.
type UpdateUserRequest struct {
	FullName *string  `json:"full_name" validate:"omitempty,notblank,max=100"`
	Username *string  `json:"username" validate:"omitempty,notblank,min=3,max=50"`
	Email    *string  `json:"email" validate:"omitempty,email,max=255"`
	Password *string  `json:"password" validate:"omitempty,min=8,max=72"`
	Roles    []string `json:"roles" validate:"omitempty,min=1,dive,oneof=Admin Doctor Patient"`
}

// DepartmentRequest creates or renames a department.
type DepartmentRequest struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parseRoles(names []string) []policy.Role {
	var roles []policy.Role
	seen := make(map[policy.Role]bool, len(names))
	for _, n := range names {
		if r, ok := policy.ParseRole(n); ok && !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	return roles
}
