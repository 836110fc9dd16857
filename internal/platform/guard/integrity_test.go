package guard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/guard/guardtest"
)

var (
	doctorInDepartment  = guard.Dependent{Kind: guard.KindDoctor, Column: "department_id"}
	appointmentOfDoctor = guard.Dependent{Kind: guard.KindAppointment, Column: "doctor_id"}
	recordOfDoctor      = guard.Dependent{Kind: guard.KindMedicalRecord, Column: "doctor_id"}
)

func newIntegrity() (*guard.Integrity, *guardtest.References) {
	refs := guardtest.NewReferences()
	return guard.NewIntegrity(&guardtest.SerialTx{}, refs, zerolog.Nop()), refs
}

func TestDependents(t *testing.T) {
	assert.Equal(t, []guard.Dependent{doctorInDepartment}, guard.Dependents(guard.KindDepartment))
	assert.Len(t, guard.Dependents(guard.KindDoctor), 2)
	assert.Len(t, guard.Dependents(guard.KindPatient), 2)
	for _, k := range []guard.Kind{guard.KindPrescription, guard.KindMedicalRecord, guard.KindAppointment, guard.KindUser} {
		assert.Empty(t, guard.Dependents(k), "%s should have no blocking dependents", k)
	}
}

func TestDelete_DepartmentWithDoctorIsBlockedUntilDoctorRemoved(t *testing.T) {
	g, refs := newIntegrity()
	dept := uuid.New()
	refs.Put(guard.KindDepartment, dept)
	refs.Reference(doctorInDepartment, dept, 1)

	removed := false
	remove := func(context.Context) error {
		removed = true
		return nil
	}

	out, err := g.Delete(context.Background(), guard.KindDepartment, dept, remove)
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeDependentsExist, out.Code)
	assert.Contains(t, out.Reason, "1 doctor")
	assert.False(t, removed)

	refs.Reference(doctorInDepartment, dept, -1)

	out, err = g.Delete(context.Background(), guard.KindDepartment, dept, remove)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.True(t, removed)
}

func TestCanDelete_DoctorReasonListsEveryBlocker(t *testing.T) {
	g, refs := newIntegrity()
	doctor := uuid.New()
	refs.Put(guard.KindDoctor, doctor)
	refs.Reference(appointmentOfDoctor, doctor, 2)
	refs.Reference(recordOfDoctor, doctor, 1)

	out, err := g.CanDelete(context.Background(), guard.KindDoctor, doctor)
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeDependentsExist, out.Code)
	assert.Contains(t, out.Reason, "2 appointments")
	assert.Contains(t, out.Reason, "1 medical record")
}

func TestCanDelete_Missing(t *testing.T) {
	g, _ := newIntegrity()
	out, err := g.CanDelete(context.Background(), guard.KindPatient, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeNotFound, out.Code)
}

func TestCanDelete_NoDependentKinds(t *testing.T) {
	g, refs := newIntegrity()
	id := uuid.New()
	refs.Put(guard.KindPrescription, id)

	out, err := g.CanDelete(context.Background(), guard.KindPrescription, id)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestDelete_StoreForeignKeyViolationIsDependentsExist(t *testing.T) {
	g, refs := newIntegrity()
	id := uuid.New()
	refs.Put(guard.KindUser, id)

	out, err := g.Delete(context.Background(), guard.KindUser, id, func(context.Context) error {
		return apperr.New(apperr.CodeDependentsExist, "user is still referenced by other records")
	})
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeDependentsExist, out.Code)
}

func TestDelete_InfrastructureErrorPropagates(t *testing.T) {
	g, refs := newIntegrity()
	id := uuid.New()
	refs.Put(guard.KindAppointment, id)
	boom := errors.New("connection reset")

	_, err := g.Delete(context.Background(), guard.KindAppointment, id, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCanDelete_CancelledContext(t *testing.T) {
	g, refs := newIntegrity()
	id := uuid.New()
	refs.Put(guard.KindDoctor, id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.CanDelete(ctx, guard.KindDoctor, id)
	assert.ErrorIs(t, err, context.Canceled)
}
