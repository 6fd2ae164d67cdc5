// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package role

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{"employee", RoleEmployee, false},
		{"merchant", RoleMerchant, false},
		{"shopOwner", RoleMerchant, false}, // legacy spelling still stored in old records
		{"rider", RoleRider, false},
		{"customer", RoleCustomer, false},
		{"", "", true},
		{"superadmin", "", true},
		{"Admin", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRole) {
					t.Fatalf("ParseRole(%q) err = %v, want ErrUnknownRole", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRole(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsOperator(t *testing.T) {
	operators := []Role{RoleAdmin, RoleEmployee}
	for _, r := range operators {
		if !r.IsOperator() {
			t.Errorf("%s.IsOperator() = false", r)
		}
	}
	for _, r := range []Role{RoleMerchant, RoleRider, RoleCustomer, Role("")} {
		if r.IsOperator() {
			t.Errorf("%s.IsOperator() = true", r)
		}
	}
}

func TestSetContains(t *testing.T) {
	s := NewSet(RoleAdmin, RoleEmployee)
	if !s.Contains(RoleAdmin) || !s.Contains(RoleEmployee) {
		t.Error("set missing its own members")
	}
	if s.Contains(RoleRider) {
		t.Error("set contains rider")
	}
	if s.Contains("") {
		t.Error("set contains empty role")
	}

	var empty Set
	if empty.Contains(RoleAdmin) {
		t.Error("empty set contains admin")
	}
}

func TestResolutionErrorReason(t *testing.T) {
	err := &ResolutionError{Reason: ReasonProfileMissing, Err: errors.New("no record")}
	reason, ok := ReasonOf(err)
	if !ok || reason != ReasonProfileMissing {
		t.Errorf("ReasonOf = %q, %v", reason, ok)
	}

	if _, ok := ReasonOf(errors.New("plain")); ok {
		t.Error("ReasonOf matched a plain error")
	}
}
