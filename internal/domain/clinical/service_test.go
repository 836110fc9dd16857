package clinical

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/guard/guardtest"
	"github.com/clinicapi/clinic/internal/platform/policy"
	"github.com/clinicapi/clinic/internal/platform/policy/policytest"
)

// -- Mock Repositories --

// parties holds the doctor and patient names both mocks resolve against.
type parties struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]string
	patients map[uuid.UUID]string
}

func (p *parties) resolve(doctorID, patientID uuid.UUID) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doctor, ok := p.doctors[doctorID]
	if !ok {
		return "", "", apperr.NotFound("doctor not found")
	}
	patient, ok := p.patients[patientID]
	if !ok {
		return "", "", apperr.NotFound("patient not found")
	}
	return doctor, patient, nil
}

var (
	recordByDoctor  = guard.Dependent{Kind: guard.KindMedicalRecord, Column: "doctor_id"}
	recordByPatient = guard.Dependent{Kind: guard.KindMedicalRecord, Column: "patient_id"}
)

type mockRecordRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*MedicalRecord
	parties *parties
	refs    *guardtest.References
}

func (m *mockRecordRepo) Create(_ context.Context, rec *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if rec.DoctorName, rec.PatientName, err = m.parties.resolve(rec.DoctorID, rec.PatientID); err != nil {
		return err
	}
	rec.ID = uuid.New()
	cp := *rec
	m.records[rec.ID] = &cp
	m.refs.Put(guard.KindMedicalRecord, rec.ID)
	m.refs.Reference(recordByDoctor, rec.DoctorID, 1)
	m.refs.Reference(recordByPatient, rec.PatientID, 1)
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("medical record not found")
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRecordRepo) Update(_ context.Context, rec *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.records[rec.ID]
	if !ok {
		return apperr.NotFound("medical record not found")
	}
	var err error
	if rec.DoctorName, rec.PatientName, err = m.parties.resolve(rec.DoctorID, rec.PatientID); err != nil {
		return err
	}
	m.refs.Reference(recordByDoctor, old.DoctorID, -1)
	m.refs.Reference(recordByPatient, old.PatientID, -1)
	m.refs.Reference(recordByDoctor, rec.DoctorID, 1)
	m.refs.Reference(recordByPatient, rec.PatientID, 1)
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return apperr.NotFound("medical record not found")
	}
	m.refs.Reference(recordByDoctor, rec.DoctorID, -1)
	m.refs.Reference(recordByPatient, rec.PatientID, -1)
	m.refs.Remove(guard.KindMedicalRecord, id)
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) List(_ context.Context, scope policy.Scope, limit, offset int) ([]*MedicalRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*MedicalRecord
	for _, rec := range m.records {
		if scope.Admits(rec.Ownership(), nil) {
			result = append(result, rec)
		}
	}
	return page(result, limit, offset), len(result), nil
}

type mockPrescriptionRepo struct {
	mu            sync.Mutex
	prescriptions map[uuid.UUID]*Prescription
	appointments  map[uuid.UUID]policy.Ownership
	parties       *parties
	refs          *guardtest.References
	lookupErr     error
}

func (m *mockPrescriptionRepo) Create(_ context.Context, rx *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if rx.DoctorName, rx.PatientName, err = m.parties.resolve(rx.DoctorID, rx.PatientID); err != nil {
		return err
	}
	rx.ID = uuid.New()
	cp := *rx
	m.prescriptions[rx.ID] = &cp
	m.refs.Put(guard.KindPrescription, rx.ID)
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rx, ok := m.prescriptions[id]
	if !ok {
		return nil, apperr.NotFound("prescription not found")
	}
	cp := *rx
	return &cp, nil
}

func (m *mockPrescriptionRepo) Update(_ context.Context, rx *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prescriptions[rx.ID]; !ok {
		return apperr.NotFound("prescription not found")
	}
	var err error
	if rx.DoctorName, rx.PatientName, err = m.parties.resolve(rx.DoctorID, rx.PatientID); err != nil {
		return err
	}
	cp := *rx
	m.prescriptions[rx.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prescriptions, id)
	m.refs.Remove(guard.KindPrescription, id)
	return nil
}

func (m *mockPrescriptionRepo) List(_ context.Context, scope policy.Scope, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Prescription
	for _, rx := range m.prescriptions {
		if scope.Admits(rx.Ownership(), nil) {
			result = append(result, rx)
		}
	}
	return page(result, limit, offset), len(result), nil
}

func (m *mockPrescriptionRepo) AppointmentOwnership(_ context.Context, id uuid.UUID) (policy.Ownership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return policy.Ownership{}, m.lookupErr
	}
	own, ok := m.appointments[id]
	if !ok {
		return policy.Ownership{}, apperr.NotFound("appointment not found")
	}
	return own, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// -- Fixture --

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	svc           *Service
	records       *mockRecordRepo
	prescriptions *mockPrescriptionRepo
	parties       *parties
	refs          *guardtest.References
	dir           *policytest.Directory
	admin         policy.Caller
}

func newTestEnv() *testEnv {
	refs := guardtest.NewReferences()
	dir := policytest.NewDirectory()
	p := &parties{doctors: make(map[uuid.UUID]string), patients: make(map[uuid.UUID]string)}
	env := &testEnv{
		records:       &mockRecordRepo{records: make(map[uuid.UUID]*MedicalRecord), parties: p, refs: refs},
		prescriptions: &mockPrescriptionRepo{prescriptions: make(map[uuid.UUID]*Prescription), appointments: make(map[uuid.UUID]policy.Ownership), parties: p, refs: refs},
		parties:       p,
		refs:          refs,
		dir:           dir,
		admin:         policytest.Admin(),
	}
	tx := &guardtest.SerialTx{}
	env.svc = NewService(env.records, env.prescriptions, policytest.NewEngine(dir), tx,
		guard.NewIntegrity(tx, refs, zerolog.Nop()), zerolog.Nop())
	env.svc.now = func() time.Time { return fixedNow }
	return env
}

func (env *testEnv) doctor(name string) (uuid.UUID, policy.Caller) {
	id := uuid.New()
	caller := policytest.Doctor(uuid.New())
	env.parties.doctors[id] = name
	env.dir.SetDoctor(caller.SubjectID, id)
	return id, caller
}

func (env *testEnv) patient(name string) (uuid.UUID, policy.Caller) {
	id := uuid.New()
	caller := policytest.Patient(uuid.New())
	env.parties.patients[id] = name
	env.dir.SetPatient(caller.SubjectID, id)
	return id, caller
}

func (env *testEnv) appointment(doctorID, patientID uuid.UUID) uuid.UUID {
	id := uuid.New()
	env.prescriptions.appointments[id] = policy.Ownership{DoctorID: doctorID, PatientID: patientID}
	return id
}

func assertCode(t *testing.T, err error, want apperr.Code) {
	t.Helper()
	if got := apperr.CodeOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

// -- Medical Record Tests --

func TestCreateMedicalRecord(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	wilson, _ := env.doctor("Wilson")
	patientID, patient := env.patient("Ada")

	rec, err := env.svc.CreateMedicalRecord(ctx, doctor, CreateMedicalRecordRequest{
		Diagnosis: " Lupus ", Prescription: "rest", DoctorID: doctorID, PatientID: patientID,
	})
	if err != nil {
		t.Fatalf("CreateMedicalRecord: %v", err)
	}
	if rec.Diagnosis != "Lupus" || !rec.RecordDate.Equal(fixedNow) {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.DoctorName != "House" || rec.PatientName != "Ada" {
		t.Errorf("expected display names, got %q %q", rec.DoctorName, rec.PatientName)
	}

	tests := []struct {
		name   string
		caller policy.Caller
		req    CreateMedicalRecordRequest
		want   apperr.Code
	}{
		{"doctor writes for a colleague", doctor, CreateMedicalRecordRequest{Diagnosis: "x", DoctorID: wilson, PatientID: patientID}, apperr.CodeForbidden},
		{"patient writes own record", patient, CreateMedicalRecordRequest{Diagnosis: "x", DoctorID: doctorID, PatientID: patientID}, apperr.CodeForbidden},
		{"unknown patient", doctor, CreateMedicalRecordRequest{Diagnosis: "x", DoctorID: doctorID, PatientID: uuid.New()}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateMedicalRecord(ctx, tt.caller, tt.req)
			assertCode(t, err, tt.want)
		})
	}
}

func TestMedicalRecord_PatientSeesOnlyOwn(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	ada, adaCaller := env.patient("Ada")
	bob, _ := env.patient("Bob")

	mine, err := env.svc.CreateMedicalRecord(ctx, doctor, CreateMedicalRecordRequest{Diagnosis: "flu", DoctorID: doctorID, PatientID: ada})
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := env.svc.CreateMedicalRecord(ctx, doctor, CreateMedicalRecordRequest{Diagnosis: "cold", DoctorID: doctorID, PatientID: bob})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.GetMedicalRecord(ctx, adaCaller, mine.ID); err != nil {
		t.Errorf("expected own record readable, got %v", err)
	}
	_, err = env.svc.GetMedicalRecord(ctx, adaCaller, theirs.ID)
	assertCode(t, err, apperr.CodeForbidden)
	_, err = env.svc.GetMedicalRecord(ctx, adaCaller, uuid.New())
	assertCode(t, err, apperr.CodeForbidden)

	list, total, err := env.svc.ListMedicalRecords(ctx, adaCaller, 20, 0)
	if err != nil {
		t.Fatalf("ListMedicalRecords: %v", err)
	}
	if total != 1 || list[0].ID != mine.ID {
		t.Errorf("expected only Ada's record, got %d", total)
	}
	_, total, _ = env.svc.ListMedicalRecords(ctx, doctor, 20, 0)
	if total != 2 {
		t.Errorf("expected doctor to see 2 records, got %d", total)
	}
}

func TestUpdateMedicalRecord(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	wilson, wilsonCaller := env.doctor("Wilson")
	patientID, _ := env.patient("Ada")

	rec, err := env.svc.CreateMedicalRecord(ctx, doctor, CreateMedicalRecordRequest{Diagnosis: "flu", DoctorID: doctorID, PatientID: patientID})
	if err != nil {
		t.Fatal(err)
	}

	diagnosis := "pneumonia"
	got, err := env.svc.UpdateMedicalRecord(ctx, doctor, rec.ID, UpdateMedicalRecordRequest{Diagnosis: &diagnosis})
	if err != nil {
		t.Fatalf("UpdateMedicalRecord: %v", err)
	}
	if got.Diagnosis != diagnosis || got.DoctorID != doctorID {
		t.Errorf("unexpected record %+v", got)
	}

	_, err = env.svc.UpdateMedicalRecord(ctx, wilsonCaller, rec.ID, UpdateMedicalRecordRequest{Diagnosis: &diagnosis})
	assertCode(t, err, apperr.CodeForbidden)

	_, err = env.svc.UpdateMedicalRecord(ctx, doctor, rec.ID, UpdateMedicalRecordRequest{DoctorID: &wilson})
	assertCode(t, err, apperr.CodeForbidden)
}

func TestDeleteMedicalRecord_AdminOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	patientID, _ := env.patient("Ada")

	rec, err := env.svc.CreateMedicalRecord(ctx, doctor, CreateMedicalRecordRequest{Diagnosis: "flu", DoctorID: doctorID, PatientID: patientID})
	if err != nil {
		t.Fatal(err)
	}

	assertCode(t, env.svc.DeleteMedicalRecord(ctx, doctor, rec.ID), apperr.CodeForbidden)
	if err := env.svc.DeleteMedicalRecord(ctx, env.admin, rec.ID); err != nil {
		t.Fatalf("DeleteMedicalRecord: %v", err)
	}
	n, _ := env.refs.CountReferences(ctx, recordByDoctor, doctorID)
	if n != 0 {
		t.Errorf("expected doctor reference released, got %d", n)
	}
}

// -- Prescription Tests --

func TestCreatePrescription(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	wilson, _ := env.doctor("Wilson")
	ada, _ := env.patient("Ada")
	bob, _ := env.patient("Bob")
	visit := env.appointment(doctorID, ada)
	other := env.appointment(wilson, ada)

	rx, err := env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "Amoxicillin", Dosage: "500mg", AppointmentID: visit, DoctorID: doctorID, PatientID: ada,
	})
	if err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}
	if !rx.DateIssued.Equal(fixedNow) || rx.PatientName != "Ada" {
		t.Errorf("unexpected prescription %+v", rx)
	}

	_, err = env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "x", AppointmentID: uuid.New(), DoctorID: doctorID, PatientID: ada,
	})
	assertCode(t, err, apperr.CodeNotFound)

	_, err = env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "x", AppointmentID: visit, DoctorID: doctorID, PatientID: bob,
	})
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := ae.Fields["appointment_id"]; !ok {
		t.Errorf("expected appointment_id field error, got %v", ae.Fields)
	}

	// Another doctor's appointment is refused before it is looked up.
	_, err = env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "x", AppointmentID: other, DoctorID: wilson, PatientID: ada,
	})
	assertCode(t, err, apperr.CodeForbidden)

	env.prescriptions.lookupErr = errors.New("connection reset")
	_, err = env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "x", AppointmentID: visit, DoctorID: doctorID, PatientID: ada,
	})
	if err == nil || apperr.CodeOf(err) != apperr.CodeInternal {
		t.Errorf("expected store failure to surface as internal, got %v", err)
	}
}

func TestPrescription_Visibility(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	_, wilsonCaller := env.doctor("Wilson")
	ada, adaCaller := env.patient("Ada")
	_, bobCaller := env.patient("Bob")

	rx, err := env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "Ibuprofen", AppointmentID: env.appointment(doctorID, ada), DoctorID: doctorID, PatientID: ada,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.GetPrescription(ctx, adaCaller, rx.ID); err != nil {
		t.Errorf("expected own prescription readable, got %v", err)
	}
	for name, caller := range map[string]policy.Caller{"other patient": bobCaller, "other doctor": wilsonCaller} {
		_, err := env.svc.GetPrescription(ctx, caller, rx.ID)
		if apperr.CodeOf(err) != apperr.CodeForbidden {
			t.Errorf("%s: expected forbidden, got %v", name, err)
		}
	}

	_, total, err := env.svc.ListPrescriptions(ctx, bobCaller, 20, 0)
	if err != nil {
		t.Fatalf("ListPrescriptions: %v", err)
	}
	if total != 0 {
		t.Errorf("expected Bob to see nothing, got %d", total)
	}
}

func TestUpdatePrescription_MoveAppointment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	wilson, _ := env.doctor("Wilson")
	ada, _ := env.patient("Ada")
	bob, _ := env.patient("Bob")

	rx, err := env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "Ibuprofen", AppointmentID: env.appointment(doctorID, ada), DoctorID: doctorID, PatientID: ada,
	})
	if err != nil {
		t.Fatal(err)
	}

	foreign := env.appointment(wilson, ada)
	_, err = env.svc.UpdatePrescription(ctx, doctor, rx.ID, UpdatePrescriptionRequest{AppointmentID: &foreign})
	assertCode(t, err, apperr.CodeForbidden)

	bobsVisit := env.appointment(doctorID, bob)
	dosage := "200mg"
	got, err := env.svc.UpdatePrescription(ctx, doctor, rx.ID, UpdatePrescriptionRequest{AppointmentID: &bobsVisit, Dosage: &dosage})
	if err != nil {
		t.Fatalf("UpdatePrescription: %v", err)
	}
	if got.PatientID != bob || got.PatientName != "Bob" || got.Dosage != dosage {
		t.Errorf("expected prescription moved to Bob, got %+v", got)
	}
}

func TestDeletePrescription(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	doctorID, doctor := env.doctor("House")
	_, wilsonCaller := env.doctor("Wilson")
	ada, adaCaller := env.patient("Ada")

	rx, err := env.svc.CreatePrescription(ctx, doctor, CreatePrescriptionRequest{
		MedicationName: "Ibuprofen", AppointmentID: env.appointment(doctorID, ada), DoctorID: doctorID, PatientID: ada,
	})
	if err != nil {
		t.Fatal(err)
	}

	assertCode(t, env.svc.DeletePrescription(ctx, adaCaller, rx.ID), apperr.CodeForbidden)
	assertCode(t, env.svc.DeletePrescription(ctx, wilsonCaller, rx.ID), apperr.CodeForbidden)
	if err := env.svc.DeletePrescription(ctx, doctor, rx.ID); err != nil {
		t.Fatalf("owning doctor delete: %v", err)
	}
	_, err = env.svc.GetPrescription(ctx, env.admin, rx.ID)
	assertCode(t, err, apperr.CodeNotFound)
}
