package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicapi/clinic/internal/platform/guard"
)

// tables maps guard kinds to their tables.
var tables = map[guard.Kind]string{
	guard.KindUser:          "app_user",
	guard.KindDepartment:    "department",
	guard.KindDoctor:        "doctor",
	guard.KindPatient:       "patient",
	guard.KindAppointment:   "appointment",
	guard.KindMedicalRecord: "medical_record",
	guard.KindPrescription:  "prescription",
}

// GuardStore implements guard.SlotStore and guard.ReferenceStore on
// PostgreSQL.
type GuardStore struct {
	pool *pgxpool.Pool
}

func NewGuardStore(pool *pgxpool.Pool) *GuardStore {
	return &GuardStore{pool: pool}
}

// slotLockKey is hashed into a transaction-scoped advisory lock.
func slotLockKey(doctorID uuid.UUID, at time.Time) string {
	return "slot:" + doctorID.String() + "@" + guard.NormalizeSlot(at).Format(time.RFC3339Nano)
}

// LockSlot takes a transaction-scoped advisory lock for the slot. It must
// run inside WithTx; outside a transaction the lock would be released
// immediately.
func (s *GuardStore) LockSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return errors.New("lock slot: no transaction on context")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, slotLockKey(doctorID, at)); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

func (s *GuardStore) SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excluding uuid.UUID) (bool, error) {
	var taken bool
	err := Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND scheduled_at = $2 AND id <> $3
		)`, doctorID, guard.NormalizeSlot(at), excluding).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return taken, nil
}

// LockRow reports whether the row exists. Inside a transaction it also
// holds a row lock so no dependent can be inserted until commit.
func (s *GuardStore) LockRow(ctx context.Context, kind guard.Kind, id uuid.UUID) (bool, error) {
	table, ok := tables[kind]
	if !ok {
		return false, fmt.Errorf("lock row: unknown kind %q", kind)
	}
	query := `SELECT 1 FROM ` + pgx.Identifier{table}.Sanitize() + ` WHERE id = $1`
	if TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}

	var one int
	err := Conn(ctx, s.pool).QueryRow(ctx, query, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", kind, err)
	}
	return true, nil
}

func (s *GuardStore) CountReferences(ctx context.Context, dep guard.Dependent, id uuid.UUID) (int64, error) {
	table, ok := tables[dep.Kind]
	if !ok {
		return 0, fmt.Errorf("count references: unknown kind %q", dep.Kind)
	}
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s = $1`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{dep.Column}.Sanitize())

	var n int64
	if err := Conn(ctx, s.pool).QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", table, dep.Column, err)
	}
	return n, nil
}
