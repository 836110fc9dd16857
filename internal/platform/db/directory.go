package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory implements policy.Directory against the profile and
// appointment tables. Nothing is cached.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) DoctorIDForSubject(ctx context.Context, subject uuid.UUID) (uuid.UUID, bool, error) {
	return d.profileID(ctx, `SELECT id FROM doctor WHERE user_id = $1`, subject)
}

func (d *Directory) PatientIDForSubject(ctx context.Context, subject uuid.UUID) (uuid.UUID, bool, error) {
	return d.profileID(ctx, `SELECT id FROM patient WHERE user_id = $1`, subject)
}

func (d *Directory) profileID(ctx context.Context, query string, subject uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := Conn(ctx, d.pool).QueryRow(ctx, query, subject).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve profile: %w", err)
	}
	return id, true, nil
}

func (d *Directory) DoctorSeesPatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var linked bool
	err := Conn(ctx, d.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointment WHERE doctor_id = $1 AND patient_id = $2)`,
		doctorID, patientID,
	).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("check doctor-patient link: %w", err)
	}
	return linked, nil
}
