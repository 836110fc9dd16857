package clinical

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// MedicalRecord maps to the medical_record table. Prescription is free text
// written at the visit, distinct from Prescription rows.
type MedicalRecord struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Diagnosis    string    `db:"diagnosis" json:"diagnosis"`
	Prescription string    `db:"prescription" json:"prescription"`
	RecordDate   time.Time `db:"record_date" json:"record_date"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName   string    `db:"doctor_name" json:"doctor_name,omitempty"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName  string    `db:"patient_name" json:"patient_name,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (m *MedicalRecord) Ownership() policy.Ownership {
	return policy.Ownership{DoctorID: m.DoctorID, PatientID: m.PatientID}
}

// Prescription maps to the prescription table. Its doctor and patient always
// match those of its appointment.
type Prescription struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DateIssued     time.Time `db:"date_issued" json:"date_issued"`
	MedicationName string    `db:"medication_name" json:"medication_name"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Instructions   string    `db:"instructions" json:"instructions"`
	AppointmentID  uuid.UUID `db:"appointment_id" json:"appointment_id"`
	DoctorID       uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName     string    `db:"doctor_name" json:"doctor_name,omitempty"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName    string    `db:"patient_name" json:"patient_name,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Prescription) Ownership() policy.Ownership {
	return policy.Ownership{DoctorID: p.DoctorID, PatientID: p.PatientID}
}

type CreateMedicalRecordRequest struct {
	Diagnosis    string     `json:"diagnosis" validate:"required,notblank,max=500"`
	Prescription string     `json:"prescription" validate:"max=500"`
	RecordDate   *time.Time `json:"record_date"`
	DoctorID     uuid.UUID  `json:"doctor_id" validate:"required"`
	PatientID    uuid.UUID  `json:"patient_id" validate:"required"`
}

type UpdateMedicalRecordRequest struct {
	Diagnosis    *string    `json:"diagnosis" validate:"omitempty,notblank,max=500"`
	Prescription *string    `json:"prescription" validate:"omitempty,max=500"`
	RecordDate   *time.Time `json:"record_date"`
	DoctorID     *uuid.UUID `json:"doctor_id"`
	PatientID    *uuid.UUID `json:"patient_id"`
}

type CreatePrescriptionRequest struct {
	MedicationName string     `json:"medication_name" validate:"required,notblank,max=200"`
	Dosage         string     `json:"dosage" validate:"max=100"`
	Instructions   string     `json:"instructions" validate:"max=500"`
	DateIssued     *time.Time `json:"date_issued"`
	AppointmentID  uuid.UUID  `json:"appointment_id" validate:"required"`
	DoctorID       uuid.UUID  `json:"doctor_id" validate:"required"`
	PatientID      uuid.UUID  `json:"patient_id" validate:"required"`
}

// UpdatePrescriptionRequest edits a prescription. Moving it to another
// appointment also moves it to that appointment's doctor and patient.
type UpdatePrescriptionRequest struct {
	MedicationName *string    `json:"medication_name" validate:"omitempty,notblank,max=200"`
	Dosage         *string    `json:"dosage" validate:"omitempty,max=100"`
	Instructions   *string    `json:"instructions" validate:"omitempty,max=500"`
	DateIssued     *time.Time `json:"date_issued"`
	AppointmentID  *uuid.UUID `json:"appointment_id"`
}
