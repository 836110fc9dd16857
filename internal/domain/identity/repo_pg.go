package identity

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

// -- Doctor Repository --

const doctorColumns = `d.id, d.full_name, d.consultation_fee, d.department_id, dep.name, d.user_id, u.username, u.email, d.created_at, d.updated_at`

var doctorScope = policy.Columns{Subject: "d.user_id", Doctor: "d.id"}

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func doctorError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "doctor_user_id_key"):
		return apperr.Conflict("user already has a doctor profile")
	case db.IsForeignKeyViolation(err, "doctor_department_id_fkey"):
		return apperr.NotFound("department not found")
	case db.IsForeignKeyViolation(err, "doctor_user_id_fkey"):
		return apperr.NotFound("user not found")
	}
	return db.Translate(err, "doctor")
}

func (r *doctorRepoPG) selectDoctors(columns string) sq.SelectBuilder {
	return db.PSQL.Select(columns).From("doctor d").
		Join("department dep ON dep.id = d.department_id").
		Join("app_user u ON u.id = d.user_id")
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := db.Conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO doctor (id, full_name, consultation_fee, department_id, user_id)
			VALUES ($1, $2, $3, $4, $5)`,
			d.ID, d.FullName, d.ConsultationFee, d.DepartmentID, d.UserID,
		)
		if err != nil {
			return doctorError(err)
		}
		return r.reload(ctx, d)
	})
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	query, args, err := r.selectDoctors(doctorColumns).Where("d.id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select doctor: %w", err)
	}
	d, err := scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, doctorError(err)
	}
	return d, nil
}

func (r *doctorRepoPG) reload(ctx context.Context, d *Doctor) error {
	fresh, err := r.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	*d = *fresh
	return nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
			UPDATE doctor SET
				full_name = $2, consultation_fee = $3, department_id = $4, user_id = $5,
				updated_at = NOW()
			WHERE id = $1`,
			d.ID, d.FullName, d.ConsultationFee, d.DepartmentID, d.UserID,
		)
		if err != nil {
			return doctorError(err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("doctor not found")
		}
		return r.reload(ctx, d)
	})
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err, "doctor")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Doctor, int, error) {
	q := db.Conn(ctx, r.pool)

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("doctor d"), doctorScope))
	if err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	query, args, err := scope.Apply(r.selectDoctors(doctorColumns), doctorScope).
		OrderBy("d.full_name", "d.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list doctors: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	doctors := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FullName, &d.ConsultationFee, &d.DepartmentID, &d.DepartmentName,
		&d.UserID, &d.Username, &d.Email, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// -- Patient Repository --

const patientColumns = `p.id, p.full_name, p.address, p.phone_number, p.user_id, u.username, u.email, p.created_at, p.updated_at`

var patientScope = policy.Columns{Subject: "p.user_id", Patient: "p.id"}

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func patientError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "patient_user_id_key"):
		return apperr.Conflict("user already has a patient profile")
	case db.IsForeignKeyViolation(err, "patient_user_id_fkey"):
		return apperr.NotFound("user not found")
	}
	return db.Translate(err, "patient")
}

func (r *patientRepoPG) selectPatients(columns string) sq.SelectBuilder {
	return db.PSQL.Select(columns).From("patient p").Join("app_user u ON u.id = p.user_id")
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := db.Conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO patient (id, full_name, address, phone_number, user_id)
			VALUES ($1, $2, $3, $4, $5)`,
			p.ID, p.FullName, p.Address, p.PhoneNumber, p.UserID,
		)
		if err != nil {
			return patientError(err)
		}
		return r.reload(ctx, p)
	})
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	query, args, err := r.selectPatients(patientColumns).Where("p.id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select patient: %w", err)
	}
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, patientError(err)
	}
	return p, nil
}

func (r *patientRepoPG) reload(ctx context.Context, p *Patient) error {
	fresh, err := r.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *fresh
	return nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
			UPDATE patient SET
				full_name = $2, address = $3, phone_number = $4, user_id = $5, updated_at = NOW()
			WHERE id = $1`,
			p.ID, p.FullName, p.Address, p.PhoneNumber, p.UserID,
		)
		if err != nil {
			return patientError(err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("patient not found")
		}
		return r.reload(ctx, p)
	})
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err, "patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Patient, int, error) {
	q := db.Conn(ctx, r.pool)

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("patient p"), patientScope))
	if err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query, args, err := scope.Apply(r.selectPatients(patientColumns), patientScope).
		OrderBy("p.full_name", "p.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list patients: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Address, &p.PhoneNumber, &p.UserID,
		&p.Username, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
