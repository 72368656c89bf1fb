package model

import (
	"strings"
	"time"

	"projectmonitor/pkg/apperr"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleConsultant Role = "CONSULTANT"
	RoleContractor Role = "CONTRACTOR"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleConsultant, RoleContractor:
		return r, nil
	default:
		return "", apperr.Validation("unknown role %q", s)
	}
}

// Actor is the authenticated caller, or a registered user when loaded from
// the store.
type Actor struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}
