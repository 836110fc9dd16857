package policy_test

import (
	"context"
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
	"github.com/clinicapi/clinic/internal/platform/policy/policytest"
)

type fixture struct {
	dir     *policytest.Directory
	engine  *policy.Engine
	doctor  policy.Caller
	docID   uuid.UUID
	patient policy.Caller
	patID   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{dir: policytest.NewDirectory()}
	f.engine = policytest.NewEngine(f.dir)

	f.doctor = policytest.Doctor(uuid.New())
	f.docID = uuid.New()
	f.dir.SetDoctor(f.doctor.SubjectID, f.docID)

	f.patient = policytest.Patient(uuid.New())
	f.patID = uuid.New()
	f.dir.SetPatient(f.patient.SubjectID, f.patID)
	return f
}

func authorize(t *testing.T, f *fixture, c policy.Caller, op policy.Operation, res policy.Resource, own policy.Ownership) policy.Decision {
	t.Helper()
	d, err := f.engine.Authorize(context.Background(), c, op, res, own)
	require.NoError(t, err)
	return d
}

func TestDefaultMatrixParses(t *testing.T) {
	_, err := policy.DefaultMatrix()
	require.NoError(t, err)
}

func TestParseMatrix_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown role": `
resources:
  doctor:
    allow: {read: [Nurse]}
    ownership: {Admin: any}`,
		"unknown rule": `
resources:
  doctor:
    allow: {read: [Admin]}
    ownership: {Admin: everything}`,
		"missing ownership": `
resources:
  doctor:
    allow: {read: [Admin, Doctor]}
    ownership: {Admin: any}`,
		"unknown resource": `
resources:
  invoice:
    allow: {read: [Admin]}
    ownership: {Admin: any}`,
		"unknown operation": `
resources:
  doctor:
    allow: {approve: [Admin]}
    ownership: {Admin: any}`,
		"empty": `resources: {}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := policy.ParseMatrix([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestAdminIsUnrestricted(t *testing.T) {
	f := newFixture()
	admin := policytest.Admin()
	resources := []policy.Resource{
		policy.ResUser, policy.ResDepartment, policy.ResDoctor, policy.ResPatient,
		policy.ResAppointment, policy.ResMedicalRecord, policy.ResPrescription,
	}
	ops := []policy.Operation{policy.OpRead, policy.OpUpdate, policy.OpDelete}
	for _, res := range resources {
		for _, op := range ops {
			d := authorize(t, f, admin, op, res, policy.Ownership{DoctorID: uuid.New(), PatientID: uuid.New()})
			assert.True(t, d.Allowed, "admin %s %s", op, res)
		}
	}
}

func TestRoleOutsideAllowSetIsDeniedRegardlessOfOwnership(t *testing.T) {
	f := newFixture()
	own := policy.Ownership{DoctorID: f.docID, PatientID: f.patID}

	for _, op := range []policy.Operation{policy.OpCreate, policy.OpUpdate, policy.OpDelete} {
		d := authorize(t, f, f.patient, op, policy.ResAppointment, own)
		assert.False(t, d.Allowed, "patient %s own appointment", op)
		assert.Equal(t, apperr.CodeForbidden, d.Code)
		assert.True(t, errors.Is(d.Err(), apperr.ErrForbidden))
	}

	d := authorize(t, f, f.doctor, policy.OpDelete, policy.ResAppointment, own)
	assert.False(t, d.Allowed, "doctor may not delete appointments")

	d = authorize(t, f, f.doctor, policy.OpRead, policy.ResDepartment, policy.Ownership{})
	assert.False(t, d.Allowed)
}

func TestDoctorOwnership(t *testing.T) {
	f := newFixture()
	mine := policy.Ownership{DoctorID: f.docID, PatientID: uuid.New()}
	theirs := policy.Ownership{DoctorID: uuid.New(), PatientID: uuid.New()}

	for _, res := range []policy.Resource{policy.ResAppointment, policy.ResMedicalRecord, policy.ResPrescription} {
		assert.True(t, authorize(t, f, f.doctor, policy.OpRead, res, mine).Allowed, "%s mine", res)
		assert.True(t, authorize(t, f, f.doctor, policy.OpUpdate, res, mine).Allowed, "%s mine", res)
		assert.False(t, authorize(t, f, f.doctor, policy.OpRead, res, theirs).Allowed, "%s theirs", res)
	}

	assert.True(t, authorize(t, f, f.doctor, policy.OpUpdate, policy.ResDoctor, policy.Ownership{DoctorID: f.docID}).Allowed)
	assert.False(t, authorize(t, f, f.doctor, policy.OpUpdate, policy.ResDoctor, policy.Ownership{DoctorID: uuid.New()}).Allowed)
	assert.True(t, authorize(t, f, f.doctor, policy.OpDelete, policy.ResPrescription, mine).Allowed)
}

func TestDoctorSeesPatientOnlyWhenLinked(t *testing.T) {
	f := newFixture()
	own := policy.Ownership{PatientID: f.patID}

	assert.False(t, authorize(t, f, f.doctor, policy.OpRead, policy.ResPatient, own).Allowed)

	f.dir.Link(f.docID, f.patID)
	assert.True(t, authorize(t, f, f.doctor, policy.OpRead, policy.ResPatient, own).Allowed)

	f.dir.Unlink(f.docID, f.patID)
	assert.False(t, authorize(t, f, f.doctor, policy.OpRead, policy.ResPatient, own).Allowed,
		"visibility must be recomputed after the appointment is removed")
}

func TestPatientSeesOnlyOwnRecords(t *testing.T) {
	f := newFixture()
	other := uuid.New()

	for _, res := range []policy.Resource{policy.ResAppointment, policy.ResMedicalRecord, policy.ResPrescription, policy.ResPatient} {
		assert.True(t, authorize(t, f, f.patient, policy.OpRead, res, policy.Ownership{DoctorID: uuid.New(), PatientID: f.patID}).Allowed, "%s own", res)
		d := authorize(t, f, f.patient, policy.OpRead, res, policy.Ownership{DoctorID: uuid.New(), PatientID: other})
		assert.False(t, d.Allowed, "%s other", res)
		assert.Equal(t, apperr.CodeForbidden, d.Code)
	}
	assert.False(t, authorize(t, f, f.patient, policy.OpRead, policy.ResDoctor, policy.Ownership{DoctorID: uuid.New()}).Allowed)
}

func TestUserSelfOrAdmin(t *testing.T) {
	f := newFixture()
	self := policy.Ownership{SubjectID: f.patient.SubjectID}
	other := policy.Ownership{SubjectID: uuid.New()}

	for _, op := range []policy.Operation{policy.OpRead, policy.OpUpdate, policy.OpDelete} {
		assert.True(t, authorize(t, f, f.patient, op, policy.ResUser, self).Allowed)
		assert.False(t, authorize(t, f, f.patient, op, policy.ResUser, other).Allowed)
		assert.True(t, authorize(t, f, policytest.Admin(), op, policy.ResUser, other).Allowed)
	}
	assert.False(t, f.engine.RoleAllowed(f.patient, policy.ResUser, policy.OpList))
}

func TestMissingProfileFailsClosed(t *testing.T) {
	f := newFixture()
	orphanDoctor := policytest.Doctor(uuid.New())
	orphanPatient := policytest.Patient(uuid.New())

	d := authorize(t, f, orphanDoctor, policy.OpRead, policy.ResAppointment, policy.Ownership{})
	assert.False(t, d.Allowed, "zero doctor id must not match a missing profile")

	d = authorize(t, f, orphanPatient, policy.OpRead, policy.ResPrescription, policy.Ownership{})
	assert.False(t, d.Allowed)

	s, err := f.engine.Scope(context.Background(), orphanDoctor, policy.ResPatient)
	require.NoError(t, err)
	assert.False(t, s.Allowed)
}

func TestDirectoryErrorPropagates(t *testing.T) {
	f := newFixture()
	f.dir.Err = errors.New("database unavailable")

	_, err := f.engine.Authorize(context.Background(), f.doctor, policy.OpRead, policy.ResAppointment, policy.Ownership{})
	assert.Error(t, err)
	_, err = f.engine.Scope(context.Background(), f.patient, policy.ResAppointment)
	assert.Error(t, err)
}

func TestMultiRoleCallerUsesFirstAllowedRole(t *testing.T) {
	f := newFixture()
	c := policy.Caller{SubjectID: f.patient.SubjectID, Roles: []policy.Role{policy.RolePatient, policy.RoleDoctor}}
	docID := uuid.New()
	f.dir.SetDoctor(c.SubjectID, docID)

	// Patient may not create appointments, so the Doctor role is used.
	d := authorize(t, f, c, policy.OpCreate, policy.ResAppointment, policy.Ownership{DoctorID: docID})
	assert.True(t, d.Allowed)
	d = authorize(t, f, c, policy.OpCreate, policy.ResAppointment, policy.Ownership{DoctorID: uuid.New()})
	assert.False(t, d.Allowed)

	s, err := f.engine.Scope(context.Background(), c, policy.ResAppointment)
	require.NoError(t, err)
	assert.Equal(t, policy.ScopePatient, s.Kind)
}

func TestCheck(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.engine.Check(ctx, f.patient, policy.OpRead, policy.ResMedicalRecord, policy.Ownership{PatientID: f.patID})
	assert.NoError(t, err)

	err = f.engine.Check(ctx, f.patient, policy.OpRead, policy.ResMedicalRecord, policy.Ownership{PatientID: uuid.New()})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	f.dir.Err = errors.New("database unavailable")
	err = f.engine.Check(ctx, f.patient, policy.OpRead, policy.ResMedicalRecord, policy.Ownership{PatientID: f.patID})
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

func TestConceal(t *testing.T) {
	f := newFixture()
	missing := apperr.NotFound("appointment not found")

	err := f.engine.Conceal(f.patient, policy.OpRead, policy.ResAppointment, missing)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	err = f.engine.Conceal(policytest.Admin(), policy.OpRead, policy.ResAppointment, missing)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	other := errors.New("boom")
	assert.Equal(t, other, f.engine.Conceal(f.patient, policy.OpRead, policy.ResAppointment, other))
}

func TestScopeKinds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.engine.Scope(ctx, policytest.Admin(), policy.ResPatient)
	require.NoError(t, err)
	assert.Equal(t, policy.ScopeAll, s.Kind)

	s, err = f.engine.Scope(ctx, f.doctor, policy.ResPatient)
	require.NoError(t, err)
	assert.Equal(t, policy.ScopeLinked, s.Kind)
	assert.Equal(t, f.docID, s.ID)

	s, err = f.engine.Scope(ctx, f.doctor, policy.ResAppointment)
	require.NoError(t, err)
	assert.Equal(t, policy.ScopeDoctor, s.Kind)

	s, err = f.engine.Scope(ctx, f.patient, policy.ResMedicalRecord)
	require.NoError(t, err)
	assert.Equal(t, policy.ScopePatient, s.Kind)
	assert.Equal(t, f.patID, s.ID)

	s, err = f.engine.Scope(ctx, f.patient, policy.ResDoctor)
	require.NoError(t, err)
	assert.False(t, s.Allowed)
}

func TestScopeWhere(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	cols := policy.Columns{Subject: "u.id", Doctor: "a.doctor_id", Patient: "p.id"}
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	all := policy.Scope{Decision: policy.Decision{Allowed: true}, Kind: policy.ScopeAll}
	assert.Nil(t, all.Where(cols))

	q, args, err := policy.Scope{Decision: policy.Decision{Allowed: true}, Kind: policy.ScopeDoctor, ID: id}.
		Apply(psql.Select("a.id").From("appointment a"), cols).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT a.id FROM appointment a WHERE a.doctor_id = $1", q)
	assert.Equal(t, []interface{}{id}, args)

	q, args, err = policy.Scope{Decision: policy.Decision{Allowed: true}, Kind: policy.ScopeLinked, ID: id}.
		Apply(psql.Select("p.id").From("patient p"), cols).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT p.id FROM patient p WHERE EXISTS (SELECT 1 FROM appointment scope_a WHERE scope_a.patient_id = p.id AND scope_a.doctor_id = $1)", q)
	assert.Equal(t, []interface{}{id}, args)
}

func TestScopeAdmitsTracksLinks(t *testing.T) {
	f := newFixture()
	s, err := f.engine.Scope(context.Background(), f.doctor, policy.ResPatient)
	require.NoError(t, err)

	own := policy.Ownership{PatientID: f.patID}
	assert.False(t, s.Admits(own, f.dir.Linked))
	f.dir.Link(f.docID, f.patID)
	assert.True(t, s.Admits(own, f.dir.Linked))
}
