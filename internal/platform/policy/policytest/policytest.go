// Package policytest provides an in-memory policy.Directory and engine
// constructors for tests.
package policytest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Directory is an in-memory policy.Directory. Links count appointments
// between a doctor and a patient.
type Directory struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]uuid.UUID
	patients map[uuid.UUID]uuid.UUID
	links    map[[2]uuid.UUID]int
	Err      error
}

func NewDirectory() *Directory {
	return &Directory{
		doctors:  make(map[uuid.UUID]uuid.UUID),
		patients: make(map[uuid.UUID]uuid.UUID),
		links:    make(map[[2]uuid.UUID]int),
	}
}

// SetDoctor binds doctorID to subject.
func (d *Directory) SetDoctor(subject, doctorID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doctors[subject] = doctorID
}

// SetPatient binds patientID to subject.
func (d *Directory) SetPatient(subject, patientID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[subject] = patientID
}

// Link records one appointment between doctor and patient; Unlink removes one.
func (d *Directory) Link(doctorID, patientID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links[[2]uuid.UUID{doctorID, patientID}]++
}

func (d *Directory) Unlink(doctorID, patientID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := [2]uuid.UUID{doctorID, patientID}
	if d.links[k] > 0 {
		d.links[k]--
	}
}

// Linked is the in-memory form of DoctorSeesPatient, suitable for
// policy.Scope.Admits.
func (d *Directory) Linked(doctorID, patientID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.links[[2]uuid.UUID{doctorID, patientID}] > 0
}

func (d *Directory) DoctorIDForSubject(ctx context.Context, subject uuid.UUID) (uuid.UUID, bool, error) {
	if d.Err != nil {
		return uuid.Nil, false, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.doctors[subject]
	return id, ok, nil
}

func (d *Directory) PatientIDForSubject(ctx context.Context, subject uuid.UUID) (uuid.UUID, bool, error) {
	if d.Err != nil {
		return uuid.Nil, false, d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.patients[subject]
	return id, ok, nil
}

func (d *Directory) DoctorSeesPatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	if d.Err != nil {
		return false, d.Err
	}
	return d.Linked(doctorID, patientID), nil
}

// NewEngine builds an engine over the embedded policy and dir. It panics if
// the embedded policy does not parse.
func NewEngine(dir policy.Directory) *policy.Engine {
	m, err := policy.DefaultMatrix()
	if err != nil {
		panic(err)
	}
	return policy.NewEngine(m, dir, zerolog.Nop())
}

// Admin, Doctor and Patient build callers with a single role.
func Admin() policy.Caller {
	return policy.Caller{SubjectID: uuid.New(), Username: "admin", Roles: []policy.Role{policy.RoleAdmin}}
}

func Doctor(subject uuid.UUID) policy.Caller {
	return policy.Caller{SubjectID: subject, Username: "doctor", Roles: []policy.Role{policy.RoleDoctor}}
}

func Patient(subject uuid.UUID) policy.Caller {
	return policy.Caller{SubjectID: subject, Username: "patient", Roles: []policy.Role{policy.RolePatient}}
}
