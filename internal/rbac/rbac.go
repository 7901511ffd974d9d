// Package rbac maps profile roles to the capabilities route handlers check.
//
// Roles form a closed set. Every permission check goes through Has, so the
// table below is the only place that decides who may do what.
package rbac

import (
	"fmt"
	"strings"
)

// Role is a profile role as stored in profiles.role.
type Role string

const (
	RoleSuperAdmin       Role = "super_admin"
	RoleEventManager     Role = "event_manager"
	RoleContentModerator Role = "content_moderator"
	RoleContentCreator   Role = "content_creator"
	RoleAlumniPremium    Role = "alumni_premium"
	RoleAlumniMember     Role = "alumni_member"
)

// DefaultRole is assigned to imported and self-registered profiles.
const DefaultRole = RoleAlumniMember

// Roles lists every known role, most privileged first.
var Roles = []Role{
	RoleSuperAdmin,
	RoleEventManager,
	RoleContentModerator,
	RoleContentCreator,
	RoleAlumniPremium,
	RoleAlumniMember,
}

// Permission is a capability a route may require.
type Permission string

const (
	PermAccessAdmin           Permission = "access_admin"
	PermManageUserProfiles    Permission = "manage_user_profiles"
	PermExportAlumniData      Permission = "export_alumni_data"
	PermManagePaymentSettings Permission = "manage_payment_settings"
	PermUploadMedia           Permission = "upload_media"
	PermManageEvents          Permission = "manage_events"
	PermModerateContent       Permission = "moderate_content"
	PermCreateContent         Permission = "create_content"
	PermAccessPremium         Permission = "access_premium"
	PermViewDirectory         Permission = "view_directory"
)

var permissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermAccessAdmin, PermManageUserProfiles, PermExportAlumniData, PermManagePaymentSettings,
		PermUploadMedia, PermManageEvents, PermModerateContent, PermCreateContent,
		PermAccessPremium, PermViewDirectory,
	},
	RoleEventManager: {
		PermAccessAdmin, PermManageEvents, PermUploadMedia, PermAccessPremium, PermViewDirectory,
	},
	RoleContentModerator: {
		PermAccessAdmin, PermModerateContent, PermCreateContent, PermUploadMedia,
		PermAccessPremium, PermViewDirectory,
	},
	RoleContentCreator: {
		PermCreateContent, PermUploadMedia, PermViewDirectory,
	},
	RoleAlumniPremium: {
		PermAccessPremium, PermViewDirectory,
	},
	RoleAlumniMember: {
		PermViewDirectory,
	},
}

// ParseRole accepts a stored role string, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := permissions[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := permissions[r]
	return ok
}

// Has reports whether role r grants p. Unknown roles grant nothing.
func Has(r Role, p Permission) bool {
	for _, granted := range permissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the capabilities granted to r.
func Permissions(r Role) []Permission {
	return append([]Permission(nil), permissions[r]...)
}
