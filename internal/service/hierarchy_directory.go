package service

import (
	"context"
	"errors"
	"sort"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/repository"
)

// OutletSet is the set of outlet codes an actor may act upon. All marks the
// universal set; an empty non-All set grants access to nothing.
type OutletSet struct {
	All   bool
	Codes []string
}

// Contains reports whether code is in the set.
func (s OutletSet) Contains(code string) bool {
	if s.All {
		return true
	}
	for _, c := range s.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// HierarchyDirectory resolves actors to outlets and outlets back to officers.
type HierarchyDirectory interface {
	OutletsFor(ctx context.Context, actor domain.Actor) (OutletSet, error)
	// FieldOfficerFor returns the FO responsible for an outlet. The lowest
	// username wins when several FO edges cover the same outlet.
	FieldOfficerFor(ctx context.Context, outletCode string) (string, bool, error)
	HasEdge(ctx context.Context, edge domain.AssignmentEdge) (bool, error)
	RegisteredOfficer(ctx context.Context, outletCode string, role domain.Role) (*domain.Officer, bool, error)
}

type repositoryDirectory struct {
	edges    repository.AssignmentRepository
	officers repository.OfficerRepository
}

// NewHierarchyDirectory builds a directory over the assignment edge table.
func NewHierarchyDirectory(edges repository.AssignmentRepository, officers repository.OfficerRepository) HierarchyDirectory {
	return &repositoryDirectory{edges: edges, officers: officers}
}

func (d *repositoryDirectory) OutletsFor(ctx context.Context, actor domain.Actor) (OutletSet, error) {
	switch actor.Role {
	case domain.RoleVendor, domain.RoleSuperuser:
		return OutletSet{All: true}, nil
	case domain.RoleFO, domain.RoleDO, domain.RoleDRSM, domain.RoleSRH:
		codes, err := d.edges.OutletsForUser(ctx, actor.ID, actor.Role)
		if err != nil {
			return OutletSet{}, err
		}
		return OutletSet{Codes: dedupe(codes)}, nil
	case domain.RoleRO:
		if actor.HomeOutlet == "" {
			return OutletSet{Codes: []string{}}, nil
		}
		return OutletSet{Codes: []string{actor.HomeOutlet}}, nil
	default:
		return OutletSet{Codes: []string{}}, nil
	}
}

func (d *repositoryDirectory) FieldOfficerFor(ctx context.Context, outletCode string) (string, bool, error) {
	usernames, err := d.edges.UsernamesForOutlet(ctx, outletCode, domain.RoleFO)
	if err != nil {
		return "", false, err
	}
	if len(usernames) == 0 {
		return "", false, nil
	}
	sort.Strings(usernames)
	return usernames[0], true, nil
}

func (d *repositoryDirectory) HasEdge(ctx context.Context, edge domain.AssignmentEdge) (bool, error) {
	return d.edges.Exists(ctx, edge)
}

func (d *repositoryDirectory) RegisteredOfficer(ctx context.Context, outletCode string, role domain.Role) (*domain.Officer, bool, error) {
	officer, err := d.officers.FindByOutletAndRole(ctx, outletCode, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return officer, true, nil
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
