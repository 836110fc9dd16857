package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/guard"
)

func TestSlotLockKey_SameInstantSameKey(t *testing.T) {
	doctor := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	utc := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("UTC-5", -5*60*60))

	if slotLockKey(doctor, utc) != slotLockKey(doctor, local) {
		t.Error("expected equal instants to share a lock key")
	}
	if slotLockKey(doctor, utc) == slotLockKey(doctor, utc.Add(time.Second)) {
		t.Error("expected different instants to use different keys")
	}
	if slotLockKey(doctor, utc) == slotLockKey(uuid.New(), utc) {
		t.Error("expected different doctors to use different keys")
	}
}

func TestTables_CoverEveryDependent(t *testing.T) {
	kinds := []guard.Kind{
		guard.KindUser, guard.KindDepartment, guard.KindDoctor, guard.KindPatient,
		guard.KindAppointment, guard.KindMedicalRecord, guard.KindPrescription,
	}
	for _, k := range kinds {
		if _, ok := tables[k]; !ok {
			t.Errorf("no table for kind %s", k)
		}
		for _, dep := range guard.Dependents(k) {
			if _, ok := tables[dep.Kind]; !ok {
				t.Errorf("no table for dependent kind %s", dep.Kind)
			}
		}
	}
}

func TestLockSlot_RequiresTransaction(t *testing.T) {
	s := NewGuardStore(nil)
	if err := s.LockSlot(context.Background(), uuid.New(), time.Now()); err == nil {
		t.Fatal("expected error when no transaction is on the context")
	}
}
