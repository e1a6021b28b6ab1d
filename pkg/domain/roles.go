package domain

import (
	dErrors "fedcred/pkg/domain-errors"
)

// Role is the caller's federation role carried in access tokens.
type Role string

const (
	RoleAdmin    Role = "admin"    // federation staff; may issue, transition, renew, report
	RoleVerifier Role = "verifier" // event staff; may verify credentials
	RoleMember   Role = "member"   // credential holder; may list their own credentials
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleVerifier, RoleMember:
		return r, nil
	case "":
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
}

func (r Role) String() string { return string(r) }

// Allows reports whether r is one of the given roles.
func (r Role) Allows(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}
