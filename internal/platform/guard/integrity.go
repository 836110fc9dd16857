package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// Kind names a deletable entity.
type Kind string

const (
	KindUser          Kind = "user"
	KindDepartment    Kind = "department"
	KindDoctor        Kind = "doctor"
	KindPatient       Kind = "patient"
	KindAppointment   Kind = "appointment"
	KindMedicalRecord Kind = "medical_record"
	KindPrescription  Kind = "prescription"
)

// Dependent is a reference from rows of Kind to a parent through Column.
type Dependent struct {
	Kind   Kind
	Column string
}

// dependents lists, per parent kind, the references that block deletion.
// Kinds absent from the table have no blocking dependents.
var dependents = map[Kind][]Dependent{
	KindDepartment: {
		{Kind: KindDoctor, Column: "department_id"},
	},
	KindDoctor: {
		{Kind: KindAppointment, Column: "doctor_id"},
		{Kind: KindMedicalRecord, Column: "doctor_id"},
	},
	KindPatient: {
		{Kind: KindAppointment, Column: "patient_id"},
		{Kind: KindMedicalRecord, Column: "patient_id"},
	},
}

// Dependents returns the blocking references for kind.
func Dependents(kind Kind) []Dependent {
	return dependents[kind]
}

// ReferenceStore is the store surface the integrity guard needs. LockRow
// reports whether the row exists and, inside a transaction, holds a row
// lock on it until the transaction ends.
type ReferenceStore interface {
	LockRow(ctx context.Context, kind Kind, id uuid.UUID) (bool, error)
	CountReferences(ctx context.Context, dep Dependent, id uuid.UUID) (int64, error)
}

// Integrity refuses deletes of rows that are still referenced.
type Integrity struct {
	tx     Transactor
	refs   ReferenceStore
	logger zerolog.Logger
}

func NewIntegrity(tx Transactor, refs ReferenceStore, logger zerolog.Logger) *Integrity {
	return &Integrity{tx: tx, refs: refs, logger: logger.With().Str("guard", "integrity").Logger()}
}

// CanDelete reports whether kind/id exists and has no blocking dependents.
func (g *Integrity) CanDelete(ctx context.Context, kind Kind, id uuid.UUID) (Outcome, error) {
	exists, err := g.refs.LockRow(ctx, kind, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("look up %s: %w", kind, err)
	}
	if !exists {
		return Block(apperr.CodeNotFound, "%s not found", label(kind)), nil
	}

	var blocking []string
	for _, dep := range dependents[kind] {
		n, err := g.refs.CountReferences(ctx, dep, id)
		if err != nil {
			return Outcome{}, fmt.Errorf("count %s referencing %s: %w", dep.Kind, kind, err)
		}
		if n > 0 {
			blocking = append(blocking, fmt.Sprintf("%d %s", n, plural(dep.Kind, n)))
		}
	}
	if len(blocking) > 0 {
		return Block(apperr.CodeDependentsExist,
			"%s still has %s; remove them first", label(kind), strings.Join(blocking, " and ")), nil
	}
	return Allow(), nil
}

// Delete locks the row, re-checks its dependents and runs remove in the
// same transaction. remove is not called when the check fails. A dependents
// error raised by remove itself, such as a foreign key violation from the
// store, is reported as a DependentsExist outcome.
func (g *Integrity) Delete(ctx context.Context, kind Kind, id uuid.UUID, remove func(ctx context.Context) error) (Outcome, error) {
	var outcome Outcome
	err := g.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = g.CanDelete(ctx, kind, id)
		if err != nil || !outcome.OK {
			return err
		}
		return remove(ctx)
	})

	switch {
	case err == nil:
	case apperr.CodeOf(err) == apperr.CodeDependentsExist:
		outcome = Block(apperr.CodeDependentsExist, "%s is still referenced by other records", label(kind))
	case apperr.CodeOf(err) == apperr.CodeNotFound:
		outcome = Block(apperr.CodeNotFound, "%s not found", label(kind))
	default:
		return Outcome{}, err
	}

	if !outcome.OK {
		g.logger.Info().
			Str("kind", string(kind)).
			Str("id", id.String()).
			Str("code", string(outcome.Code)).
			Msg("delete refused")
	}
	return outcome, nil
}

func label(kind Kind) string {
	return strings.ReplaceAll(string(kind), "_", " ")
}

func plural(kind Kind, n int64) string {
	if n == 1 {
		return label(kind)
	}
	return label(kind) + "s"
}
