// Package policy decides who may do what to which clinic record.
//
// Decisions combine two pieces of static data loaded from policy.yaml: the
// roles allowed to attempt an operation on a resource, and the ownership
// rule each role is held to. Ownership is re-derived from the store on
// every call; nothing is cached between requests.
package policy

import (
	"context"

	"github.com/google/uuid"
)

// Role is a closed set of caller roles. There is no hierarchy between them.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleDoctor, RolePatient}

// ParseRole accepts the exact role names only.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RolePatient:
		return Role(s), true
	}
	return "", false
}

type Operation string

const (
	OpRead   Operation = "read"
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

type Resource string

const (
	ResUser          Resource = "user"
	ResDepartment    Resource = "department"
	ResDoctor        Resource = "doctor"
	ResPatient       Resource = "patient"
	ResAppointment   Resource = "appointment"
	ResMedicalRecord Resource = "medical_record"
	ResPrescription  Resource = "prescription"
)

// Rule is the ownership constraint a role is held to on a resource.
type Rule string

const (
	RuleAny     Rule = "any"
	RuleSubject Rule = "subject"
	RuleDoctor  Rule = "doctor"
	RulePatient Rule = "patient"
	RuleLinked  Rule = "linked"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	SubjectID uuid.UUID
	Username  string
	Email     string
	Roles     []Role
}

// Has reports whether the caller holds role.
func (c Caller) Has(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Ownership is the ownership chain of one record: the user account it
// belongs to (users only) and the doctor and patient profiles it points at.
// Zero ids mean the record has no such link.
type Ownership struct {
	SubjectID uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

type callerKey struct{}

// WithCaller returns ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
