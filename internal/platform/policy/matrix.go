package policy

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

type resourceDoc struct {
	Allow     map[Operation][]Role `yaml:"allow"`
	Ownership map[Role]Rule        `yaml:"ownership"`
}

type matrixDoc struct {
	Resources map[Resource]resourceDoc `yaml:"resources"`
}

// Matrix is the parsed allow-set and ownership table.
type Matrix struct {
	allow     map[Resource]map[Operation]map[Role]bool
	ownership map[Resource]map[Role]Rule
}

// DefaultMatrix parses the embedded policy.yaml.
func DefaultMatrix() (*Matrix, error) {
	return ParseMatrix(defaultPolicy)
}

// ParseMatrix parses and validates a policy document. Every role that is
// allowed an operation on a resource must have an ownership rule there.
func ParseMatrix(data []byte) (*Matrix, error) {
	var doc matrixDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(doc.Resources) == 0 {
		return nil, fmt.Errorf("parse policy: no resources defined")
	}

	m := &Matrix{
		allow:     make(map[Resource]map[Operation]map[Role]bool),
		ownership: make(map[Resource]map[Role]Rule),
	}
	for res, rd := range doc.Resources {
		if !knownResource(res) {
			return nil, fmt.Errorf("policy: unknown resource %q", res)
		}
		m.allow[res] = make(map[Operation]map[Role]bool)
		m.ownership[res] = make(map[Role]Rule)

		for role, rule := range rd.Ownership {
			if _, ok := ParseRole(string(role)); !ok {
				return nil, fmt.Errorf("policy: %s: unknown role %q", res, role)
			}
			if !knownRule(rule) {
				return nil, fmt.Errorf("policy: %s: unknown ownership rule %q for %s", res, rule, role)
			}
			m.ownership[res][role] = rule
		}

		for op, roles := range rd.Allow {
			if !knownOperation(op) {
				return nil, fmt.Errorf("policy: %s: unknown operation %q", res, op)
			}
			set := make(map[Role]bool, len(roles))
			for _, role := range roles {
				if _, ok := ParseRole(string(role)); !ok {
					return nil, fmt.Errorf("policy: %s.%s: unknown role %q", res, op, role)
				}
				if _, ok := m.ownership[res][role]; !ok {
					return nil, fmt.Errorf("policy: %s.%s: role %s has no ownership rule", res, op, role)
				}
				set[role] = true
			}
			m.allow[res][op] = set
		}
	}
	return m, nil
}

// Allowed reports whether role is in the allow-set of res/op.
func (m *Matrix) Allowed(res Resource, op Operation, role Role) bool {
	return m.allow[res][op][role]
}

// Rule returns the ownership rule role is held to on res.
func (m *Matrix) Rule(res Resource, role Role) (Rule, bool) {
	r, ok := m.ownership[res][role]
	return r, ok
}

// roleFor picks the caller's first role, in token order, that may perform
// res/op.
func (m *Matrix) roleFor(c Caller, res Resource, op Operation) (Role, bool) {
	for _, r := range c.Roles {
		if m.Allowed(res, op, r) {
			return r, true
		}
	}
	return "", false
}

func knownResource(r Resource) bool {
	switch r {
	case ResUser, ResDepartment, ResDoctor, ResPatient, ResAppointment, ResMedicalRecord, ResPrescription:
		return true
	}
	return false
}

func knownOperation(o Operation) bool {
	switch o {
	case OpRead, OpList, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

func knownRule(r Rule) bool {
	switch r {
	case RuleAny, RuleSubject, RuleDoctor, RulePatient, RuleLinked:
		return true
	}
	return false
}
