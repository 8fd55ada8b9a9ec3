package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidRole = errors.New("invalid role")

// Role is the closed set of user roles. The numeric values are stored in
// the database and must not change.
type Role int

const (
	RoleAdmin    Role = 1
	RoleStaff    Role = 2
	RoleCustomer Role = 3
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleStaff, RoleCustomer}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleStaff:
		return "staff"
	case RoleCustomer:
		return "customer"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	default:
		return false
	}
}

// ParseRole accepts either the role name or its numeric value.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		r := Role(n)
		if !r.Valid() {
			return 0, ErrInvalidRole
		}
		return r, nil
	}
	for _, r := range Roles {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, ErrInvalidRole
}

func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return ErrInvalidRole
		}
		s = strconv.Itoa(n)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
