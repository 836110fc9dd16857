package clinical

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Service manages medical records and prescriptions.
type Service struct {
	records       MedicalRecordRepository
	prescriptions PrescriptionRepository
	policy        *policy.Engine
	tx            guard.Transactor
	integrity     *guard.Integrity
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(records MedicalRecordRepository, prescriptions PrescriptionRepository, engine *policy.Engine, tx guard.Transactor, integrity *guard.Integrity, logger zerolog.Logger) *Service {
	return &Service{
		records:       records,
		prescriptions: prescriptions,
		policy:        engine,
		tx:            tx,
		integrity:     integrity,
		logger:        logger.With().Str("service", "clinical").Logger(),
		now:           time.Now,
	}
}

func (s *Service) dateOr(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return s.now().UTC()
	}
	return t.UTC()
}

// -- Medical Record --

func (s *Service) CreateMedicalRecord(ctx context.Context, caller policy.Caller, req CreateMedicalRecordRequest) (*MedicalRecord, error) {
	m := &MedicalRecord{
		Diagnosis:    strings.TrimSpace(req.Diagnosis),
		Prescription: strings.TrimSpace(req.Prescription),
		RecordDate:   s.dateOr(req.RecordDate),
		DoctorID:     req.DoctorID,
		PatientID:    req.PatientID,
	}
	if err := s.policy.Check(ctx, caller, policy.OpCreate, policy.ResMedicalRecord, m.Ownership()); err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", m.ID.String()).Str("doctor_id", m.DoctorID.String()).Msg("medical record created")
	return m, nil
}

func (s *Service) GetMedicalRecord(ctx context.Context, caller policy.Caller, id uuid.UUID) (*MedicalRecord, error) {
	m, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResMedicalRecord, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResMedicalRecord, m.Ownership()); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMedicalRecords(ctx context.Context, caller policy.Caller, limit, offset int) ([]*MedicalRecord, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResMedicalRecord)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.records.List(ctx, scope, limit, offset)
}

// UpdateMedicalRecord applies the fields present in req. A reassigned record
// must also be writable by the caller under its new doctor and patient.
func (s *Service) UpdateMedicalRecord(ctx context.Context, caller policy.Caller, id uuid.UUID, req UpdateMedicalRecordRequest) (*MedicalRecord, error) {
	m, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResMedicalRecord, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResMedicalRecord, m.Ownership()); err != nil {
		return nil, err
	}

	before := m.Ownership()
	if req.DoctorID != nil {
		m.DoctorID = *req.DoctorID
	}
	if req.PatientID != nil {
		m.PatientID = *req.PatientID
	}
	if m.Ownership() != before {
		if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResMedicalRecord, m.Ownership()); err != nil {
			return nil, err
		}
	}
	if req.Diagnosis != nil {
		m.Diagnosis = strings.TrimSpace(*req.Diagnosis)
	}
	if req.Prescription != nil {
		m.Prescription = strings.TrimSpace(*req.Prescription)
	}
	if req.RecordDate != nil {
		m.RecordDate = req.RecordDate.UTC()
	}

	if err := s.records.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMedicalRecord(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	m, err := s.records.GetByID(ctx, id)
	if err != nil {
		return s.policy.Conceal(caller, policy.OpDelete, policy.ResMedicalRecord, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResMedicalRecord, m.Ownership()); err != nil {
		return err
	}
	outcome, err := s.integrity.Delete(ctx, guard.KindMedicalRecord, id, func(ctx context.Context) error {
		return s.records.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}

// -- Prescription --

func errAppointmentMismatch() error {
	return apperr.Invalid("appointment_id", "appointment does not link this doctor and patient")
}

// CreatePrescription issues a prescription against an appointment. The
// appointment must exist and link the same doctor and patient, and it is
// share-locked until the prescription is written.
func (s *Service) CreatePrescription(ctx context.Context, caller policy.Caller, req CreatePrescriptionRequest) (*Prescription, error) {
	rx := &Prescription{
		DateIssued:     s.dateOr(req.DateIssued),
		MedicationName: strings.TrimSpace(req.MedicationName),
		Dosage:         strings.TrimSpace(req.Dosage),
		Instructions:   strings.TrimSpace(req.Instructions),
		AppointmentID:  req.AppointmentID,
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
	}
	if err := s.policy.Check(ctx, caller, policy.OpCreate, policy.ResPrescription, rx.Ownership()); err != nil {
		return nil, err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		own, err := s.prescriptions.AppointmentOwnership(ctx, rx.AppointmentID)
		if err != nil {
			return err
		}
		if own != rx.Ownership() {
			return errAppointmentMismatch()
		}
		return s.prescriptions.Create(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("prescription_id", rx.ID.String()).
		Str("appointment_id", rx.AppointmentID.String()).
		Msg("prescription issued")
	return rx, nil
}

func (s *Service) GetPrescription(ctx context.Context, caller policy.Caller, id uuid.UUID) (*Prescription, error) {
	rx, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResPrescription, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResPrescription, rx.Ownership()); err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, caller policy.Caller, limit, offset int) ([]*Prescription, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResPrescription)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.prescriptions.List(ctx, scope, limit, offset)
}

func (s *Service) UpdatePrescription(ctx context.Context, caller policy.Caller, id uuid.UUID, req UpdatePrescriptionRequest) (*Prescription, error) {
	rx, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResPrescription, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResPrescription, rx.Ownership()); err != nil {
		return nil, err
	}

	if req.MedicationName != nil {
		rx.MedicationName = strings.TrimSpace(*req.MedicationName)
	}
	if req.Dosage != nil {
		rx.Dosage = strings.TrimSpace(*req.Dosage)
	}
	if req.Instructions != nil {
		rx.Instructions = strings.TrimSpace(*req.Instructions)
	}
	if req.DateIssued != nil {
		rx.DateIssued = req.DateIssued.UTC()
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if req.AppointmentID != nil && *req.AppointmentID != rx.AppointmentID {
			own, err := s.prescriptions.AppointmentOwnership(ctx, *req.AppointmentID)
			if err != nil {
				return err
			}
			if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResPrescription, own); err != nil {
				return err
			}
			rx.AppointmentID = *req.AppointmentID
			rx.DoctorID, rx.PatientID = own.DoctorID, own.PatientID
		}
		return s.prescriptions.Update(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) DeletePrescription(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	rx, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return s.policy.Conceal(caller, policy.OpDelete, policy.ResPrescription, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResPrescription, rx.Ownership()); err != nil {
		return err
	}
	outcome, err := s.integrity.Delete(ctx, guard.KindPrescription, id, func(ctx context.Context) error {
		return s.prescriptions.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}
