package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// SlotStore is the store surface the scheduler needs. LockSlot must
// serialise callers for the same (doctor, time) pair until the enclosing
// transaction ends.
type SlotStore interface {
	LockSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) error
	SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excluding uuid.UUID) (bool, error)
}

// Reservation asks for a doctor's time slot. Excluding is the id of the
// appointment being updated, or uuid.Nil on create.
type Reservation struct {
	DoctorID  uuid.UUID
	At        time.Time
	Excluding uuid.UUID
}

// NormalizeSlot returns the canonical form of an appointment time: UTC at
// microsecond precision, matching what PostgreSQL stores.
func NormalizeSlot(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Scheduler prevents double-booking. Two appointments conflict when they
// share a doctor and an exactly equal timestamp; durations are not modelled.
type Scheduler struct {
	tx     Transactor
	slots  SlotStore
	logger zerolog.Logger
}

func NewScheduler(tx Transactor, slots SlotStore, logger zerolog.Logger) *Scheduler {
	return &Scheduler{tx: tx, slots: slots, logger: logger.With().Str("guard", "scheduler").Logger()}
}

// errSlotTaken aborts the transaction without surfacing as an error.
var errSlotTaken = errors.New("slot taken")

// CheckAndReserve checks the slot and runs commit in the same transaction,
// holding the slot lock until commit returns. commit is not called when the
// slot is taken. A unique violation raised by commit is reported as a
// Conflict outcome; every other commit error is returned as is.
func (s *Scheduler) CheckAndReserve(ctx context.Context, r Reservation, commit func(ctx context.Context) error) (Outcome, error) {
	at := NormalizeSlot(r.At)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.slots.LockSlot(ctx, r.DoctorID, at); err != nil {
			return err
		}
		taken, err := s.slots.SlotTaken(ctx, r.DoctorID, at, r.Excluding)
		if err != nil {
			return err
		}
		if taken {
			return errSlotTaken
		}
		return commit(ctx)
	})

	switch {
	case err == nil:
		return Allow(), nil
	case errors.Is(err, errSlotTaken), apperr.CodeOf(err) == apperr.CodeConflict:
		s.logger.Info().
			Str("doctor_id", r.DoctorID.String()).
			Time("scheduled_at", at).
			Msg("appointment slot already booked")
		return Block(apperr.CodeConflict, "doctor already has an appointment at %s", at.Format(time.RFC3339)), nil
	default:
		return Outcome{}, err
	}
}

// CheckTransition validates an appointment status change. No transition
// rules are defined yet so every change is accepted.
func (s *Scheduler) CheckTransition(from, to string) Outcome {
	return Allow()
}
