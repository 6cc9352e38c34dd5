package role

import (
	"fmt"
	"strings"
)

// Type is an enumeration of roles an account may hold.
type Type byte

// Supported roles.
const (
	_ Type = iota

	// Admin passes every permission check without explicit grants.
	Admin

	// Operator is a role for backend services calling protected methods,
	// e.g. snapshot submitters.
	Operator

	// Viewer is a read-only role. Reads are never gated, so the role is
	// informational unless some method is granted to it explicitly.
	Viewer
)

// All returns all supported roles.
func All() []Type {
	return []Type{Admin, Operator, Viewer}
}

// IsValid checks whether the role is supported.
func (t Type) IsValid() bool {
	return t >= Admin && t <= Viewer
}

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case Admin:
		return "admin"
	case Operator:
		return "operator"
	case Viewer:
		return "viewer"
	default:
		return fmt.Sprintf("role(%d)", byte(t))
	}
}

// Parse decodes role from its case-insensitive name.
func Parse(s string) (Type, error) {
	for _, t := range All() {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown role '%s'", s)
}
