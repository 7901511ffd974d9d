package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{input: "super_admin", want: RoleSuperAdmin},
		{input: " Alumni_Member ", want: RoleAlumniMember},
		{input: "content_creator", want: RoleContentCreator},
		{input: "admin", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHas(t *testing.T) {
	tests := []struct {
		name string
		role Role
		perm Permission
		want bool
	}{
		{"super admin exports", RoleSuperAdmin, PermExportAlumniData, true},
		{"super admin manages payments", RoleSuperAdmin, PermManagePaymentSettings, true},
		{"event manager reaches admin", RoleEventManager, PermAccessAdmin, true},
		{"event manager cannot export", RoleEventManager, PermExportAlumniData, false},
		{"moderator moderates", RoleContentModerator, PermModerateContent, true},
		{"creator uploads media", RoleContentCreator, PermUploadMedia, true},
		{"creator has no admin", RoleContentCreator, PermAccessAdmin, false},
		{"premium sees premium", RoleAlumniPremium, PermAccessPremium, true},
		{"member has no premium", RoleAlumniMember, PermAccessPremium, false},
		{"unknown role has nothing", Role("root"), PermViewDirectory, false},
		{"empty role has nothing", Role(""), PermAccessAdmin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Has(tt.role, tt.perm))
		})
	}
}

func TestEveryRoleHasAnEntry(t *testing.T) {
	for _, r := range Roles {
		assert.True(t, r.Valid(), "role %s", r)
		assert.NotEmpty(t, Permissions(r), "role %s", r)
	}
	assert.False(t, Role("nobody").Valid())
}

func TestPermissionsReturnsCopy(t *testing.T) {
	perms := Permissions(RoleAlumniMember)
	perms[0] = PermAccessAdmin
	assert.False(t, Has(RoleAlumniMember, PermAccessAdmin))
}
