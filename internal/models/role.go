package models

// Role represents the platform role assigned to a user by the identity/admin
// process. This service only reads roles, it never assigns them.
type Role string

const (
	RoleUser           Role = "USER"
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleCourseAdmin    Role = "COURSE_ADMIN"
	RoleContentCreator Role = "CONTENT_CREATOR"
	RoleModerator      Role = "MODERATOR"
)

// IsValid reports whether the role is one of the known platform roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleSuperAdmin, RoleCourseAdmin, RoleContentCreator, RoleModerator:
		return true
	}
	return false
}

// IsPrivileged reports whether the role grants staff-level access to all
// published content. Every non-USER role is staff: admins and creators manage
// content, moderators need to see gated content to moderate it.
func (r Role) IsPrivileged() bool {
	return r.IsValid() && r != RoleUser
}
