package login

import "strings"

// Role is a named permission bundle referenced by session state.
type Role string

// Permission names an action a role may perform.
type Permission string

const (
	RoleAdministrator Role = "administrator"
	RoleEditor        Role = "editor"
	RoleDefault       Role = "default"

	PermissionEditPosts Permission = "edit_posts"
)

// Policy evaluates role/permission rules. The administrator role
// short-circuits every check to granted; everything else consults a static
// rule table.
type Policy struct {
	rules map[Role]map[Permission]bool
}

// NewPolicy returns the default rule table.
func NewPolicy() *Policy {
	return &Policy{
		rules: map[Role]map[Permission]bool{
			RoleEditor: {
				PermissionEditPosts: true,
			},
		},
	}
}

// NormalizeRole lowercases a role name for comparison.
func NormalizeRole(name string) Role {
	return Role(strings.ToLower(name))
}

// Allowed reports whether the role grants the permission.
func (p *Policy) Allowed(role Role, permission Permission) bool {
	role = NormalizeRole(string(role))
	if role == RoleAdministrator {
		return true
	}
	perms, ok := p.rules[role]
	if !ok {
		return false
	}
	return perms[permission]
}
