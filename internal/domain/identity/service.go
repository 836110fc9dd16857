package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Service manages doctor and patient profiles. Each profile is bound to at
// most one user account.
type Service struct {
	doctors   DoctorRepository
	patients  PatientRepository
	policy    *policy.Engine
	integrity *guard.Integrity
	logger    zerolog.Logger
}

func NewService(doctors DoctorRepository, patients PatientRepository, engine *policy.Engine, integrity *guard.Integrity, logger zerolog.Logger) *Service {
	return &Service{
		doctors:   doctors,
		patients:  patients,
		policy:    engine,
		integrity: integrity,
		logger:    logger.With().Str("service", "identity").Logger(),
	}
}

func errRebind() error {
	return apperr.Forbidden("only an administrator may bind a profile to another user")
}

func errFee() error {
	return apperr.Invalid("consultation_fee", "must be greater than 0 and at most 99999999.99")
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, caller policy.Caller, req CreateDoctorRequest) (*Doctor, error) {
	if err := s.policy.Check(ctx, caller, policy.OpCreate, policy.ResDoctor, policy.Ownership{}); err != nil {
		return nil, err
	}
	fee, ok := normalizeFee(req.ConsultationFee)
	if !ok {
		return nil, errFee()
	}

	d := &Doctor{
		FullName:        strings.TrimSpace(req.FullName),
		ConsultationFee: fee,
		DepartmentID:    req.DepartmentID,
		UserID:          req.UserID,
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Str("user_id", d.UserID.String()).Msg("doctor profile created")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, caller policy.Caller, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResDoctor, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResDoctor, d.Ownership()); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, caller policy.Caller, limit, offset int) ([]*Doctor, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResDoctor)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.doctors.List(ctx, scope, limit, offset)
}

// UpdateDoctor applies the fields present in req. Doctors may edit their
// own profile but only an Admin may move it to another user.
func (s *Service) UpdateDoctor(ctx context.Context, caller policy.Caller, id uuid.UUID, req UpdateDoctorRequest) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResDoctor, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResDoctor, d.Ownership()); err != nil {
		return nil, err
	}

	if req.UserID != nil && *req.UserID != d.UserID {
		if !caller.Has(policy.RoleAdmin) {
			return nil, errRebind()
		}
		d.UserID = *req.UserID
	}
	if req.FullName != nil {
		d.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.ConsultationFee != nil {
		fee, ok := normalizeFee(*req.ConsultationFee)
		if !ok {
			return nil, errFee()
		}
		d.ConsultationFee = fee
	}
	if req.DepartmentID != nil {
		d.DepartmentID = *req.DepartmentID
	}

	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDoctor removes a doctor with no appointments or medical records.
func (s *Service) DeleteDoctor(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return s.policy.Conceal(caller, policy.OpDelete, policy.ResDoctor, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResDoctor, d.Ownership()); err != nil {
		return err
	}
	outcome, err := s.integrity.Delete(ctx, guard.KindDoctor, id, func(ctx context.Context) error {
		return s.doctors.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, caller policy.Caller, req CreatePatientRequest) (*Patient, error) {
	if err := s.policy.Check(ctx, caller, policy.OpCreate, policy.ResPatient, policy.Ownership{}); err != nil {
		return nil, err
	}
	p := &Patient{
		FullName:    strings.TrimSpace(req.FullName),
		Address:     strings.TrimSpace(req.Address),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		UserID:      req.UserID,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("user_id", p.UserID.String()).Msg("patient profile created")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, caller policy.Caller, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResPatient, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResPatient, p.Ownership()); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, caller policy.Caller, limit, offset int) ([]*Patient, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResPatient)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.patients.List(ctx, scope, limit, offset)
}

func (s *Service) UpdatePatient(ctx context.Context, caller policy.Caller, id uuid.UUID, req UpdatePatientRequest) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResPatient, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResPatient, p.Ownership()); err != nil {
		return nil, err
	}

	if req.UserID != nil && *req.UserID != p.UserID {
		if !caller.Has(policy.RoleAdmin) {
			return nil, errRebind()
		}
		p.UserID = *req.UserID
	}
	if req.FullName != nil {
		p.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Address != nil {
		p.Address = strings.TrimSpace(*req.Address)
	}
	if req.PhoneNumber != nil {
		p.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes a patient with no appointments or medical records.
func (s *Service) DeletePatient(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return s.policy.Conceal(caller, policy.OpDelete, policy.ResPatient, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResPatient, p.Ownership()); err != nil {
		return err
	}
	outcome, err := s.integrity.Delete(ctx, guard.KindPatient, id, func(ctx context.Context) error {
		return s.patients.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}
