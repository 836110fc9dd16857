package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

// Appointment maps to the appointment table. DoctorName and PatientName are
// read through joins and ignored on write.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      Status    `db:"status" json:"status"`
	Notes       string    `db:"notes" json:"notes"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName  string    `db:"doctor_name" json:"doctor_name,omitempty"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) Ownership() policy.Ownership {
	return policy.Ownership{DoctorID: a.DoctorID, PatientID: a.PatientID}
}

type CreateAppointmentRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Status      Status    `json:"status" validate:"omitempty,oneof=Pending Confirmed Completed Canceled"`
	Notes       string    `json:"notes" validate:"max=500"`
	DoctorID    uuid.UUID `json:"doctor_id" validate:"required"`
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
}

// UpdateAppointmentRequest reschedules or edits an appointment. Absent
// fields keep their value.
type UpdateAppointmentRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
	Status      *Status    `json:"status" validate:"omitempty,oneof=Pending Confirmed Completed Canceled"`
	Notes       *string    `json:"notes" validate:"omitempty,max=500"`
	DoctorID    *uuid.UUID `json:"doctor_id"`
	PatientID   *uuid.UUID `json:"patient_id"`
}
