package clinical

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

type MedicalRecordRepository interface {
	Create(ctx context.Context, m *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, m *MedicalRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*MedicalRecord, int, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Prescription, int, error)
	// AppointmentOwnership returns the doctor and patient of an appointment.
	// Inside a transaction the appointment row stays share-locked.
	AppointmentOwnership(ctx context.Context, appointmentID uuid.UUID) (policy.Ownership, error)
}
