package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Doctor maps to the doctor table. DepartmentName and the linked account's
// Username and Email are read through joins.
type Doctor struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	FullName        string          `db:"full_name" json:"full_name"`
	ConsultationFee decimal.Decimal `db:"consultation_fee" json:"consultation_fee"`
	DepartmentID    uuid.UUID       `db:"department_id" json:"department_id"`
	DepartmentName  string          `db:"department_name" json:"department_name,omitempty"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	Username        string          `db:"username" json:"username,omitempty"`
	Email           string          `db:"email" json:"email,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) Ownership() policy.Ownership {
	return policy.Ownership{SubjectID: d.UserID, DoctorID: d.ID}
}

// Patient maps to the patient table. Username and Email come from the linked
// account.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Address     string    `db:"address" json:"address"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Username    string    `db:"username" json:"username,omitempty"`
	Email       string    `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) Ownership() policy.Ownership {
	return policy.Ownership{SubjectID: p.UserID, PatientID: p.ID}
}

type CreateDoctorRequest struct {
	FullName        string          `json:"full_name" validate:"required,notblank,max=100"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	DepartmentID    uuid.UUID       `json:"department_id" validate:"required"`
	UserID          uuid.UUID       `json:"user_id" validate:"required"`
}

// UpdateDoctorRequest changes a doctor profile. Absent fields keep their
// value.
type UpdateDoctorRequest struct {
	FullName        *string          `json:"full_name" validate:"omitempty,notblank,max=100"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
	DepartmentID    *uuid.UUID       `json:"department_id"`
	UserID          *uuid.UUID       `json:"user_id"`
}

type CreatePatientRequest struct {
	FullName    string    `json:"full_name" validate:"required,notblank,max=100"`
	Address     string    `json:"address" validate:"max=200"`
	PhoneNumber string    `json:"phone_number" validate:"max=30"`
	UserID      uuid.UUID `json:"user_id" validate:"required"`
}

type UpdatePatientRequest struct {
	FullName    *string    `json:"full_name" validate:"omitempty,notblank,max=100"`
	Address     *string    `json:"address" validate:"omitempty,max=200"`
	PhoneNumber *string    `json:"phone_number" validate:"omitempty,max=30"`
	UserID      *uuid.UUID `json:"user_id"`
}

// maxFee is the largest value NUMERIC(10,2) holds.
var maxFee = decimal.RequireFromString("99999999.99")

// normalizeFee rounds to cents and checks the stored range.
func normalizeFee(fee decimal.Decimal) (decimal.Decimal, bool) {
	fee = fee.Round(2)
	return fee, fee.IsPositive() && fee.LessThanOrEqual(maxFee)
}
