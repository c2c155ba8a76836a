package intel

// Role is a viewer role. Roles form a total order: public < pro < admin.
type Role string

// Viewer roles, lowest first.
const (
	RolePublic Role = "public"
	RolePro    Role = "pro"
	RoleAdmin  Role = "admin"
)

// Roles lists all roles in ascending order.
var Roles = []Role{RolePublic, RolePro, RoleAdmin}

var roleOrder = map[Role]int{
	RolePublic: 0,
	RolePro:    1,
	RoleAdmin:  2,
}

// SourceRoles is the static policy table mapping each source to the
// minimum role required to see its records.
var SourceRoles = map[Source]Role{
	SourceCatalog:     RolePro,
	SourceKrebsBlog:   RolePublic,
	SourceMSRCBlog:    RolePublic,
	SourceVulnDB:      RoleAdmin,
	SourceExploitFeed: RoleAdmin,
	SourceUser:        RolePublic,
}

// ParseRole returns the role matching s, or public for unknown input.
func ParseRole(s string) Role {
	r := Role(s)
	if _, ok := roleOrder[r]; ok {
		return r
	}
	return RolePublic
}

// RolesAtOrAbove returns every role whose level is >= min.
func RolesAtOrAbove(min Role) []Role {
	level, ok := roleOrder[min]
	if !ok {
		level = 0
	}
	out := make([]Role, 0, len(Roles))
	for _, r := range Roles {
		if roleOrder[r] >= level {
			out = append(out, r)
		}
	}
	return out
}

// RoleAllows reports whether a viewer with role current may see content
// gated at min.
func RoleAllows(current, min Role) bool {
	return roleOrder[current] >= roleOrder[min]
}
