package clinical

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

// joinParties adds the doctor and patient joins shared by both tables. The
// alias of the clinical table must be "r".
func joinParties(b sq.SelectBuilder) sq.SelectBuilder {
	return b.Join("doctor d ON d.id = r.doctor_id").Join("patient p ON p.id = r.patient_id")
}

var clinicalScope = policy.Columns{Doctor: "r.doctor_id", Patient: "r.patient_id"}

func partyError(err error, table, what string) error {
	switch {
	case err == nil:
		return nil
	case db.IsForeignKeyViolation(err, table+"_doctor_id_fkey"):
		return apperr.NotFound("doctor not found")
	case db.IsForeignKeyViolation(err, table+"_patient_id_fkey"):
		return apperr.NotFound("patient not found")
	case db.IsForeignKeyViolation(err, table+"_appointment_id_fkey"):
		return apperr.NotFound("appointment not found")
	}
	return db.TranslateWrite(err, what)
}

// -- Medical Record Repository --

const recordColumns = `r.id, r.diagnosis, r.prescription, r.record_date, r.doctor_id, d.full_name,
	r.patient_id, p.full_name, r.created_at, r.updated_at`

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicalRecordRepo(pool *pgxpool.Pool) MedicalRecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := db.Conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO medical_record (id, diagnosis, prescription, record_date, doctor_id, patient_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.Diagnosis, m.Prescription, m.RecordDate, m.DoctorID, m.PatientID,
		)
		if err != nil {
			return partyError(err, "medical_record", "medical record")
		}
		return r.reload(ctx, m)
	})
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	query, args, err := joinParties(db.PSQL.Select(recordColumns).From("medical_record r")).
		Where("r.id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select medical record: %w", err)
	}
	m, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.Translate(err, "medical record")
	}
	return m, nil
}

func (r *recordRepoPG) reload(ctx context.Context, m *MedicalRecord) error {
	fresh, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *fresh
	return nil
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
			UPDATE medical_record SET
				diagnosis = $2, prescription = $3, record_date = $4, doctor_id = $5, patient_id = $6,
				updated_at = NOW()
			WHERE id = $1`,
			m.ID, m.Diagnosis, m.Prescription, m.RecordDate, m.DoctorID, m.PatientID,
		)
		if err != nil {
			return partyError(err, "medical_record", "medical record")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("medical record not found")
		}
		return r.reload(ctx, m)
	})
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM medical_record WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err, "medical record")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical record not found")
	}
	return nil
}

func (r *recordRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*MedicalRecord, int, error) {
	q := db.Conn(ctx, r.pool)

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("medical_record r"), clinicalScope))
	if err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}

	query, args, err := scope.Apply(joinParties(db.PSQL.Select(recordColumns).From("medical_record r")), clinicalScope).
		OrderBy("r.record_date DESC", "r.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list medical records: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}
	defer rows.Close()

	records := []*MedicalRecord{}
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan medical record: %w", err)
		}
		records = append(records, m)
	}
	return records, total, rows.Err()
}

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.Diagnosis, &m.Prescription, &m.RecordDate, &m.DoctorID, &m.DoctorName,
		&m.PatientID, &m.PatientName, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// -- Prescription Repository --

const prescriptionColumns = `r.id, r.date_issued, r.medication_name, r.dosage, r.instructions, r.appointment_id,
	r.doctor_id, d.full_name, r.patient_id, p.full_name, r.created_at, r.updated_at`

type prescriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewPrescriptionRepo(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) Create(ctx context.Context, rx *Prescription) error {
	rx.ID = uuid.New()
	query, args, err := db.PSQL.Insert("prescription").
		Columns("id", "date_issued", "medication_name", "dosage", "instructions", "appointment_id", "doctor_id", "patient_id").
		Values(rx.ID, rx.DateIssued, rx.MedicationName, rx.Dosage, rx.Instructions, rx.AppointmentID, rx.DoctorID, rx.PatientID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert prescription: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...); err != nil {
			return partyError(err, "prescription", "prescription")
		}
		return r.reload(ctx, rx)
	})
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	query, args, err := joinParties(db.PSQL.Select(prescriptionColumns).From("prescription r")).
		Where("r.id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select prescription: %w", err)
	}
	rx, err := scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.Translate(err, "prescription")
	}
	return rx, nil
}

func (r *prescriptionRepoPG) reload(ctx context.Context, rx *Prescription) error {
	fresh, err := r.GetByID(ctx, rx.ID)
	if err != nil {
		return err
	}
	*rx = *fresh
	return nil
}

func (r *prescriptionRepoPG) Update(ctx context.Context, rx *Prescription) error {
	query, args, err := db.PSQL.Update("prescription").
		Set("date_issued", rx.DateIssued).
		Set("medication_name", rx.MedicationName).
		Set("dosage", rx.Dosage).
		Set("instructions", rx.Instructions).
		Set("appointment_id", rx.AppointmentID).
		Set("doctor_id", rx.DoctorID).
		Set("patient_id", rx.PatientID).
		Set("updated_at", sq.Expr("NOW()")).
		Where("id = ?", rx.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update prescription: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
		if err != nil {
			return partyError(err, "prescription", "prescription")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("prescription not found")
		}
		return r.reload(ctx, rx)
	})
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM prescription WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err, "prescription")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription not found")
	}
	return nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Prescription, int, error) {
	q := db.Conn(ctx, r.pool)

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("prescription r"), clinicalScope))
	if err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	query, args, err := scope.Apply(joinParties(db.PSQL.Select(prescriptionColumns).From("prescription r")), clinicalScope).
		OrderBy("r.date_issued DESC", "r.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list prescriptions: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	prescriptions := []*Prescription{}
	for rows.Next() {
		rx, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan prescription: %w", err)
		}
		prescriptions = append(prescriptions, rx)
	}
	return prescriptions, total, rows.Err()
}

func (r *prescriptionRepoPG) AppointmentOwnership(ctx context.Context, appointmentID uuid.UUID) (policy.Ownership, error) {
	var own policy.Ownership
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT doctor_id, patient_id FROM appointment WHERE id = $1 FOR SHARE`, appointmentID,
	).Scan(&own.DoctorID, &own.PatientID)
	if err != nil {
		return policy.Ownership{}, db.Translate(err, "appointment")
	}
	return own, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var rx Prescription
	err := row.Scan(&rx.ID, &rx.DateIssued, &rx.MedicationName, &rx.Dosage, &rx.Instructions, &rx.AppointmentID,
		&rx.DoctorID, &rx.DoctorName, &rx.PatientID, &rx.PatientName, &rx.CreatedAt, &rx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rx, nil
}
