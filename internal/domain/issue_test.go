package domain

import (
	"errors"
	"testing"
)

func TestReference(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   int64
		want string
	}{
		{1, "ISSUE-001"},
		{7, "ISSUE-007"},
		{42, "ISSUE-042"},
		{999, "ISSUE-999"},
		{1234, "ISSUE-1234"},
	}
	for _, tt := range tests {
		if got := Reference(tt.id); got != tt.want {
			t.Fatalf("Reference(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestParseReference(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"ISSUE-001", 1, true},
		{"issue-7", 7, true},
		{"#12", 12, true},
		{" 5 ", 5, true},
		{"ISSUE-", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"Issue-042", 42, true},
		{"ıSSUE-17", 0, false},
		{"ıssue-7", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseReference(tt.raw)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Fatalf("ParseReference(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrBadReference) {
			t.Fatalf("ParseReference(%q) err = %v, want ErrBadReference", tt.raw, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]Role{
		"admin":       RoleAdmin,
		"Employee":    RoleEmployee,
		"super_admin": RoleSuperAdmin,
		"super-admin": RoleSuperAdmin,
		"superadmin":  RoleSuperAdmin,
	} {
		got, err := ParseRole(raw)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if !RoleAdmin.Privileged() || !RoleSuperAdmin.Privileged() || RoleEmployee.Privileged() {
		t.Fatalf("unexpected Privileged() results")
	}
}
