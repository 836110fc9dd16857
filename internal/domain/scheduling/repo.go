package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// AppointmentRepository persists appointments. Create and Update run on the
// transaction carried by ctx when there is one.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Appointment, int, error)
}
