package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Service books and edits appointments. Every write that places an
// appointment in a doctor's calendar goes through the scheduler.
type Service struct {
	appointments AppointmentRepository
	policy       *policy.Engine
	scheduler    *guard.Scheduler
	integrity    *guard.Integrity
	logger       zerolog.Logger
}

func NewService(appointments AppointmentRepository, engine *policy.Engine, scheduler *guard.Scheduler, integrity *guard.Integrity, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appointments,
		policy:       engine,
		scheduler:    scheduler,
		integrity:    integrity,
		logger:       logger.With().Str("service", "scheduling").Logger(),
	}
}

func (s *Service) CreateAppointment(ctx context.Context, caller policy.Caller, req CreateAppointmentRequest) (*Appointment, error) {
	a := &Appointment{
		ScheduledAt: guard.NormalizeSlot(req.ScheduledAt),
		Status:      StatusPending,
		Notes:       strings.TrimSpace(req.Notes),
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
	}
	if req.Status != "" {
		a.Status = req.Status
	}
	if err := s.policy.Check(ctx, caller, policy.OpCreate, policy.ResAppointment, a.Ownership()); err != nil {
		return nil, err
	}

	outcome, err := s.scheduler.CheckAndReserve(ctx, guard.Reservation{DoctorID: a.DoctorID, At: a.ScheduledAt},
		func(ctx context.Context) error {
			return s.appointments.Create(ctx, a)
		})
	if err != nil {
		return nil, err
	}
	if err := outcome.Err(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Msg("appointment booked")
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, caller policy.Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResAppointment, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResAppointment, a.Ownership()); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, caller policy.Caller, limit, offset int) ([]*Appointment, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResAppointment)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.appointments.List(ctx, scope, limit, offset)
}

// UpdateAppointment applies the fields present in req. The caller must be
// allowed to update the appointment both as stored and as it will be
// stored, so a doctor cannot hand an appointment to a colleague.
func (s *Service) UpdateAppointment(ctx context.Context, caller policy.Caller, id uuid.UUID, req UpdateAppointmentRequest) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResAppointment, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResAppointment, a.Ownership()); err != nil {
		return nil, err
	}

	before := a.Ownership()
	if req.DoctorID != nil {
		a.DoctorID = *req.DoctorID
	}
	if req.PatientID != nil {
		a.PatientID = *req.PatientID
	}
	if a.Ownership() != before {
		if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResAppointment, a.Ownership()); err != nil {
			return nil, err
		}
	}

	if req.Status != nil && *req.Status != a.Status {
		if err := s.scheduler.CheckTransition(string(a.Status), string(*req.Status)).Err(); err != nil {
			return nil, err
		}
		a.Status = *req.Status
	}
	if req.ScheduledAt != nil {
		a.ScheduledAt = *req.ScheduledAt
	}
	a.ScheduledAt = guard.NormalizeSlot(a.ScheduledAt)
	if req.Notes != nil {
		a.Notes = strings.TrimSpace(*req.Notes)
	}

	outcome, err := s.scheduler.CheckAndReserve(ctx, guard.Reservation{DoctorID: a.DoctorID, At: a.ScheduledAt, Excluding: a.ID},
		func(ctx context.Context) error {
			return s.appointments.Update(ctx, a)
		})
	if err != nil {
		return nil, err
	}
	if err := outcome.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAppointment removes an appointment and, through the store, its
// prescriptions.
func (s *Service) DeleteAppointment(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return s.policy.Conceal(caller, policy.OpDelete, policy.ResAppointment, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResAppointment, a.Ownership()); err != nil {
		return err
	}
	outcome, err := s.integrity.Delete(ctx, guard.KindAppointment, id, func(ctx context.Context) error {
		return s.appointments.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}
