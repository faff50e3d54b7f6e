package rbac

import "strings"

// Role is an admin privilege level. Keep these stable; they are part of the token contract.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleLevels = map[Role]int{
	RoleSuperAdmin: 100,
	RoleAdmin:      75,
	RoleEditor:     50,
	RoleViewer:     25,
}

// Level returns the hierarchy level of r. Unknown roles are 0.
func (r Role) Level() int { return roleLevels[r] }

func (r Role) Valid() bool { return roleLevels[r] > 0 }

func (r Role) String() string { return string(r) }

// ParseRole accepts the canonical names plus the dashed/spaced spellings stored by older admin rows.
func ParseRole(s string) (Role, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	if n == "superadmin" {
		n = string(RoleSuperAdmin)
	}
	r := Role(n)
	return r, r.Valid()
}

// HasRole reports whether actual satisfies required in the hierarchy.
func HasRole(actual, required Role) bool {
	if !actual.Valid() || !required.Valid() {
		return false
	}
	return actual.Level() >= required.Level()
}

func IsSuperAdmin(r Role) bool { return r == RoleSuperAdmin }

// Roles lists the hierarchy from least to most privileged.
func Roles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleAdmin, RoleSuperAdmin}
}
