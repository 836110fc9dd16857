package scheduling

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/db"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

const appointmentColumns = `a.id, a.scheduled_at, a.status, a.notes, a.doctor_id, d.full_name,
	a.patient_id, p.full_name, a.created_at, a.updated_at`

var appointmentScope = policy.Columns{Doctor: "a.doctor_id", Patient: "a.patient_id"}

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func appointmentError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "appointment_doctor_slot_key"):
		return apperr.Conflict("doctor already has an appointment at that time")
	case db.IsForeignKeyViolation(err, "appointment_doctor_id_fkey"):
		return apperr.NotFound("doctor not found")
	case db.IsForeignKeyViolation(err, "appointment_patient_id_fkey"):
		return apperr.NotFound("patient not found")
	}
	return db.TranslateWrite(err, "appointment")
}

func selectAppointments(columns string) sq.SelectBuilder {
	return db.PSQL.Select(columns).
		From("appointment a").
		Join("doctor d ON d.id = a.doctor_id").
		Join("patient p ON p.id = a.patient_id")
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := db.Conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO appointment (id, scheduled_at, status, notes, doctor_id, patient_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.ScheduledAt, a.Status, a.Notes, a.DoctorID, a.PatientID,
		)
		if err != nil {
			return appointmentError(err)
		}
		return r.reload(ctx, a)
	})
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query, args, err := selectAppointments(appointmentColumns).Where("a.id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select appointment: %w", err)
	}
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.Translate(err, "appointment")
	}
	return a, nil
}

func (r *appointmentRepoPG) reload(ctx context.Context, a *Appointment) error {
	fresh, err := r.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = *fresh
	return nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
			UPDATE appointment SET
				scheduled_at = $2, status = $3, notes = $4, doctor_id = $5, patient_id = $6,
				updated_at = NOW()
			WHERE id = $1`,
			a.ID, a.ScheduledAt, a.Status, a.Notes, a.DoctorID, a.PatientID,
		)
		if err != nil {
			return appointmentError(err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("appointment not found")
		}
		return r.reload(ctx, a)
	})
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err, "appointment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Appointment, int, error) {
	q := db.Conn(ctx, r.pool)

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("appointment a"), appointmentScope))
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query, args, err := scope.Apply(selectAppointments(appointmentColumns), appointmentScope).
		OrderBy("a.scheduled_at DESC", "a.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list appointments: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	appointments := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	return appointments, total, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ScheduledAt, &a.Status, &a.Notes, &a.DoctorID, &a.DoctorName,
		&a.PatientID, &a.PatientName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
