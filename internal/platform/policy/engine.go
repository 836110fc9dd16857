package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// Directory resolves a caller's own profiles and the derived doctor-patient
// link. Implementations must read the store on every call.
type Directory interface {
	DoctorIDForSubject(ctx context.Context, subject uuid.UUID) (uuid.UUID, bool, error)
	PatientIDForSubject(ctx context.Context, subject uuid.UUID) (uuid.UUID, bool, error)
	DoctorSeesPatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Code    apperr.Code
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...interface{}) Decision {
	return Decision{Code: apperr.CodeForbidden, Reason: fmt.Sprintf(format, args...)}
}

// Err converts a denial into an *apperr.Error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.New(d.Code, "%s", d.Reason)
}

// Engine evaluates the policy matrix for a caller.
type Engine struct {
	matrix *Matrix
	dir    Directory
	logger zerolog.Logger
}

func NewEngine(matrix *Matrix, dir Directory, logger zerolog.Logger) *Engine {
	return &Engine{matrix: matrix, dir: dir, logger: logger.With().Str("component", "policy").Logger()}
}

// RoleAllowed reports whether any of the caller's roles is in the allow-set
// for res/op. It ignores ownership and is meant for route-level gates.
func (e *Engine) RoleAllowed(c Caller, res Resource, op Operation) bool {
	_, ok := e.matrix.roleFor(c, res, op)
	return ok
}

// Authorize decides a single-record operation. own describes the record as
// stored, or as it would be stored for create and update.
func (e *Engine) Authorize(ctx context.Context, c Caller, op Operation, res Resource, own Ownership) (Decision, error) {
	role, ok := e.matrix.roleFor(c, res, op)
	if !ok {
		return e.denied(c, op, res, deny("not permitted to %s %s", op, label(res))), nil
	}
	rule, _ := e.matrix.Rule(res, role)

	d, err := e.check(ctx, c, rule, res, own)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allowed {
		return e.denied(c, op, res, d), nil
	}
	return d, nil
}

// Check is Authorize for callers that only need an error: it returns the
// infrastructure error, the denial as an *apperr.Error, or nil.
func (e *Engine) Check(ctx context.Context, c Caller, op Operation, res Resource, own Ownership) error {
	d, err := e.Authorize(ctx, c, op, res, own)
	if err != nil {
		return err
	}
	return d.Err()
}

func (e *Engine) check(ctx context.Context, c Caller, rule Rule, res Resource, own Ownership) (Decision, error) {
	switch rule {
	case RuleAny:
		return allow(), nil

	case RuleSubject:
		if own.SubjectID != uuid.Nil && own.SubjectID == c.SubjectID {
			return allow(), nil
		}
		return deny("%s belongs to another user", label(res)), nil

	case RuleDoctor:
		id, ok, err := e.dir.DoctorIDForSubject(ctx, c.SubjectID)
		if err != nil {
			return Decision{}, fmt.Errorf("resolve doctor profile: %w", err)
		}
		if !ok {
			return deny("no doctor profile is linked to this account"), nil
		}
		if own.DoctorID != id {
			return deny("%s belongs to another doctor", label(res)), nil
		}
		return allow(), nil

	case RulePatient:
		id, ok, err := e.dir.PatientIDForSubject(ctx, c.SubjectID)
		if err != nil {
			return Decision{}, fmt.Errorf("resolve patient profile: %w", err)
		}
		if !ok {
			return deny("no patient profile is linked to this account"), nil
		}
		if own.PatientID != id {
			return deny("%s belongs to another patient", label(res)), nil
		}
		return allow(), nil

	case RuleLinked:
		id, ok, err := e.dir.DoctorIDForSubject(ctx, c.SubjectID)
		if err != nil {
			return Decision{}, fmt.Errorf("resolve doctor profile: %w", err)
		}
		if !ok {
			return deny("no doctor profile is linked to this account"), nil
		}
		if own.PatientID == uuid.Nil {
			return deny("patient has no appointment with this doctor"), nil
		}
		linked, err := e.dir.DoctorSeesPatient(ctx, id, own.PatientID)
		if err != nil {
			return Decision{}, fmt.Errorf("check doctor-patient link: %w", err)
		}
		if !linked {
			return deny("patient has no appointment with this doctor"), nil
		}
		return allow(), nil
	}
	return deny("no ownership rule for %s", label(res)), nil
}

// Conceal hides the absence of a record from callers who could only ever
// see part of the resource: a NotFound becomes Forbidden unless the caller's
// rule on res is "any". Other errors pass through.
func (e *Engine) Conceal(c Caller, op Operation, res Resource, err error) error {
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		return err
	}
	role, ok := e.matrix.roleFor(c, res, op)
	if ok {
		if rule, _ := e.matrix.Rule(res, role); rule == RuleAny {
			return err
		}
	}
	return apperr.Forbidden("access to %s denied", label(res))
}

func (e *Engine) denied(c Caller, op Operation, res Resource, d Decision) Decision {
	e.logger.Debug().
		Str("subject", c.SubjectID.String()).
		Str("operation", string(op)).
		Str("resource", string(res)).
		Str("reason", d.Reason).
		Msg("access denied")
	return d
}

func label(res Resource) string {
	switch res {
	case ResMedicalRecord:
		return "medical record"
	default:
		return string(res)
	}
}
