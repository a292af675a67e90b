package domain

import "testing"

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleOwner, RoleAdmin, RoleMember, RoleViewer} {
		if !ValidRole(role) {
			t.Errorf("Expected %q to be a valid role", role)
		}
	}
	for _, role := range []string{"", "root", "superadmin", "OWNER"} {
		if ValidRole(role) {
			t.Errorf("Expected %q to be rejected", role)
		}
	}
}

func TestRoleAllows(t *testing.T) {
	cases := []struct {
		role string
		cap  Capability
		want bool
	}{
		{RoleOwner, CapManageTenant, true},
		{RoleOwner, CapManageInvitations, true},
		{RoleAdmin, CapManageTenant, true},
		{RoleAdmin, CapManageMembers, true},
		{RoleAdmin, CapWriteRecords, true},
		{RoleMember, CapWriteRecords, true},
		{RoleMember, CapViewRecords, true},
		{RoleMember, CapManageTenant, false},
		{RoleMember, CapManageInvitations, false},
		{RoleViewer, CapViewRecords, true},
		{RoleViewer, CapWriteRecords, false},
		{RoleViewer, CapManageMembers, false},
		{"unknown", CapViewRecords, false},
	}

	for _, c := range cases {
		if got := RoleAllows(c.role, c.cap); got != c.want {
			t.Errorf("RoleAllows(%q, %q) = %v, want %v", c.role, c.cap, got, c.want)
		}
	}
}

func TestRoleRank(t *testing.T) {
	if !(RoleRank(RoleOwner) > RoleRank(RoleAdmin)) {
		t.Error("Expected owner to outrank admin")
	}
	if !(RoleRank(RoleAdmin) > RoleRank(RoleMember)) {
		t.Error("Expected admin to outrank member")
	}
	if !(RoleRank(RoleMember) > RoleRank(RoleViewer)) {
		t.Error("Expected member to outrank viewer")
	}
	if RoleRank("unknown") != 0 {
		t.Errorf("Expected unknown role rank 0, got %d", RoleRank("unknown"))
	}
}
