package domain

import (
	"fmt"
	"strings"
)

// Role is a closed set of privilege levels. Higher levels satisfy lower ones.
type Role string

const (
	RoleUser    Role = "user"
	RoleBlogger Role = "blogger"
	RoleAdmin   Role = "admin"
)

var roleLevels = map[Role]int{
	RoleUser:    1,
	RoleBlogger: 2,
	RoleAdmin:   3,
}

// ParseRole converts s into a Role, rejecting anything outside the known set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the privilege rank of r, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// Satisfies reports whether r grants at least the privileges of required.
func (r Role) Satisfies(required Role) bool {
	return r.Valid() && required.Valid() && r.Level() >= required.Level()
}

func (r Role) String() string {
	return string(r)
}
