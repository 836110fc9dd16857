package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// DoctorRepository defines the persistence interface for doctor profiles.
// A second profile for the same user is a Conflict; a missing department or
// user is NotFound.
type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Doctor, int, error)
}

// PatientRepository defines the persistence interface for patient profiles.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Patient, int, error)
}
