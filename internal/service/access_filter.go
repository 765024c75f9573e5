package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

// AccessFilter narrows queries and gates single-record access by hierarchy.
type AccessFilter struct {
	directory HierarchyDirectory
	scopes    HierarchyDirectory
}

// NewAccessFilter builds a filter. scopes may be a cached directory used for
// list scoping; directory is always consulted for point access.
func NewAccessFilter(directory, scopes HierarchyDirectory) *AccessFilter {
	if scopes == nil {
		scopes = directory
	}
	return &AccessFilter{directory: directory, scopes: scopes}
}

// Scope restricts filter to the outlets the actor may see.
func (f *AccessFilter) Scope(ctx context.Context, actor domain.Actor, filter repository.FeedbackFilter) (repository.FeedbackFilter, error) {
	if actor.Role.Unrestricted() {
		return filter, nil
	}
	set, err := f.scopes.OutletsFor(ctx, actor)
	if err != nil {
		return filter, err
	}
	filter.Scoped = true
	filter.OutletScope = append([]string{}, set.Codes...)
	return filter, nil
}

// CanAccess is the authoritative single-record check used before detail
// reads and before any transition.
func (f *AccessFilter) CanAccess(ctx context.Context, actor domain.Actor, fc *domain.FeedbackCase) (bool, error) {
	if fc == nil {
		return false, nil
	}
	return f.CanAccessOutlet(ctx, actor, fc.OutletCode)
}

// CanAccessOutlet applies the per-role point rule to an outlet.
func (f *AccessFilter) CanAccessOutlet(ctx context.Context, actor domain.Actor, outletCode string) (bool, error) {
	switch actor.Role {
	case domain.RoleVendor, domain.RoleSuperuser:
		return true, nil
	case domain.RoleDO:
		if actor.City == "" {
			return false, nil
		}
		ro, found, err := f.directory.RegisteredOfficer(ctx, outletCode, domain.RoleRO)
		if err != nil || !found {
			return false, err
		}
		return ro.City == actor.City, nil
	case domain.RoleRO:
		return actor.HomeOutlet != "" && outletCode == actor.HomeOutlet, nil
	case domain.RoleFO:
		return f.directory.HasEdge(ctx, domain.AssignmentEdge{
			Username:   actor.ID,
			Role:       domain.RoleFO,
			OutletCode: outletCode,
		})
	default:
		return false, nil
	}
}

// missingCaseError reports a failed case lookup. Restricted roles get the same
// Forbidden they would get for an existing case outside their hierarchy, so
// probing ids reveals nothing about other outlets.
func missingCaseError(actor domain.Actor, caseID int64, err error) error {
	if !errors.Is(err, repository.ErrNotFound) {
		return apperrors.MapError(err)
	}
	if !actor.Role.Unrestricted() {
		return apperrors.NewForbidden("not authorized for this feedback")
	}
	return apperrors.NewNotFound("feedback", map[string]any{"id": strconv.FormatInt(caseID, 10)})
}
