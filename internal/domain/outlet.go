package domain

// Outlet is a retail location identified by a unique code.
type Outlet struct {
	Code   string
	Name   string
	City   string
	Region string
}

// Label renders the outlet for selection lists.
func (o Outlet) Label() string {
	if o.Name == "" {
		return o.Code
	}
	return o.Code + " - " + o.Name
}

// AssignmentEdge records that Username, acting as Role, is responsible for OutletCode.
type AssignmentEdge struct {
	Username   string
	Role       Role
	OutletCode string
}
