package policy

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// ScopeKind describes how a list is narrowed.
type ScopeKind string

const (
	ScopeAll     ScopeKind = "all"
	ScopeSubject ScopeKind = "subject"
	ScopeDoctor  ScopeKind = "doctor"
	ScopePatient ScopeKind = "patient"
	ScopeLinked  ScopeKind = "linked"
)

// Scope is the result of a list authorization: a Decision plus, when
// allowed, the predicate that restricts rows to what the caller may see.
type Scope struct {
	Decision
	Kind ScopeKind
	// ID is the caller's subject, doctor or patient id, depending on Kind.
	ID uuid.UUID
}

// Columns names the columns a repository exposes for scoping. Unused
// entries may be left empty.
type Columns struct {
	Subject string
	Doctor  string
	Patient string
}

// Where renders the scope as a squirrel predicate. It returns nil for
// ScopeAll. Callers must not use a denied scope.
func (s Scope) Where(cols Columns) sq.Sqlizer {
	switch s.Kind {
	// sq.Eq would expand a uuid.UUID as an IN list, so ids go through Expr.
	case ScopeSubject:
		return sq.Expr(cols.Subject+" = ?", s.ID)
	case ScopeDoctor:
		return sq.Expr(cols.Doctor+" = ?", s.ID)
	case ScopePatient:
		return sq.Expr(cols.Patient+" = ?", s.ID)
	case ScopeLinked:
		return sq.Expr(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM appointment scope_a WHERE scope_a.patient_id = %s AND scope_a.doctor_id = ?)",
			cols.Patient), s.ID)
	default:
		return nil
	}
}

// Apply adds the scope predicate to b.
func (s Scope) Apply(b sq.SelectBuilder, cols Columns) sq.SelectBuilder {
	if w := s.Where(cols); w != nil {
		return b.Where(w)
	}
	return b
}

// Admits evaluates the scope against one record in memory. linked answers
// whether the doctor has an appointment with the patient.
func (s Scope) Admits(own Ownership, linked func(doctorID, patientID uuid.UUID) bool) bool {
	if !s.Allowed {
		return false
	}
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeSubject:
		return own.SubjectID == s.ID
	case ScopeDoctor:
		return own.DoctorID == s.ID
	case ScopePatient:
		return own.PatientID == s.ID
	case ScopeLinked:
		return linked != nil && linked(s.ID, own.PatientID)
	}
	return false
}

// Scope authorizes a list operation and returns the narrowing predicate.
// A caller without the profile their rule needs is denied.
func (e *Engine) Scope(ctx context.Context, c Caller, res Resource) (Scope, error) {
	role, ok := e.matrix.roleFor(c, res, OpList)
	if !ok {
		return Scope{Decision: e.denied(c, OpList, res, deny("not permitted to list %s records", label(res)))}, nil
	}
	rule, _ := e.matrix.Rule(res, role)

	switch rule {
	case RuleAny:
		return Scope{Decision: allow(), Kind: ScopeAll}, nil

	case RuleSubject:
		return Scope{Decision: allow(), Kind: ScopeSubject, ID: c.SubjectID}, nil

	case RuleDoctor, RuleLinked:
		id, ok, err := e.dir.DoctorIDForSubject(ctx, c.SubjectID)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve doctor profile: %w", err)
		}
		if !ok {
			return Scope{Decision: e.denied(c, OpList, res, deny("no doctor profile is linked to this account"))}, nil
		}
		kind := ScopeDoctor
		if rule == RuleLinked {
			kind = ScopeLinked
		}
		return Scope{Decision: allow(), Kind: kind, ID: id}, nil

	case RulePatient:
		id, ok, err := e.dir.PatientIDForSubject(ctx, c.SubjectID)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve patient profile: %w", err)
		}
		if !ok {
			return Scope{Decision: e.denied(c, OpList, res, deny("no patient profile is linked to this account"))}, nil
		}
		return Scope{Decision: allow(), Kind: ScopePatient, ID: id}, nil
	}
	return Scope{Decision: deny("no ownership rule for %s", label(res))}, nil
}
