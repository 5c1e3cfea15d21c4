package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Privileged reports whether the role may create, list and close issues.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseRole accepts the canonical names plus "superadmin" / "super-admin".
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	if s == "superadmin" {
		s = string(RoleSuperAdmin)
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (want employee, admin or super_admin)", s)
	}
	return r, nil
}

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
)

// Profile holds optional organizational metadata.
type Profile struct {
	EmployeeID string
	FullName   string
	Department string
	JobTitle   string
	Phone      string
	// ManagerID references another user by identity (nil when unset).
	ManagerID *int64
}

type User struct {
	ID        int64
	Username  string
	FirstName string
	Role      Role
	Status    Status
	CreatedAt time.Time
	LastSeen  time.Time
	Profile   Profile
}

// NewUser returns a user with the default role and status.
func NewUser(id int64, firstName, username string, now time.Time) User {
	return User{
		ID:        id,
		Username:  strings.TrimSpace(username),
		FirstName: strings.TrimSpace(firstName),
		Role:      RoleEmployee,
		Status:    StatusPendingApproval,
		CreatedAt: now,
		LastSeen:  now,
	}
}

// DisplayName prefers the first name, then @username, then the numeric id.
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.FirstName); n != "" {
		return n
	}
	if h := strings.TrimSpace(u.Username); h != "" {
		return "@" + h
	}
	return fmt.Sprintf("%d", u.ID)
}
