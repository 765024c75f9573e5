package domain

// Role enumerates positions in the outlet hierarchy.
type Role string

const (
	RoleVendor    Role = "Vendor"
	RoleSuperuser Role = "superuser"
	RoleSRH       Role = "SRH"
	RoleDRSM      Role = "DRSM"
	RoleDO        Role = "DO"
	RoleFO        Role = "FO"
	RoleRO        Role = "RO"
)

// Unrestricted reports whether the role bypasses hierarchy scoping.
func (r Role) Unrestricted() bool {
	return r == RoleVendor || r == RoleSuperuser
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleVendor, RoleSuperuser, RoleSRH, RoleDRSM, RoleDO, RoleFO, RoleRO:
		return true
	}
	return false
}

// Actor is the authenticated caller for the duration of one request.
type Actor struct {
	ID         string
	Role       Role
	HomeOutlet string
	City       string
}

// Officer is a registered hierarchy account.
type Officer struct {
	Username   string
	FullName   string
	Role       Role
	HomeOutlet string
	City       string
	Active     bool
}
