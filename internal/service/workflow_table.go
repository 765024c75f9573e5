package service

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

type transitionKey struct {
	role domain.Role
	from domain.WorkflowStatus
	to   domain.WorkflowStatus
}

// transitionContext is what an effect sees and mutates.
type transitionContext struct {
	actor   domain.Actor
	fc      *domain.FeedbackCase
	officer *string
	// manual is set when the assignment came from the caller rather than the hierarchy.
	manual bool
}

type effectFunc func(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error

type transitionRule struct {
	effect   effectFunc
	override bool
}

type transitionTable map[transitionKey]transitionRule

var nonTerminalStates = []domain.WorkflowStatus{
	domain.WorkflowPending,
	domain.WorkflowVendorVerified,
	domain.WorkflowAssigned,
	domain.WorkflowActionTaken,
}

// buildTransitionTable enumerates every permitted (role, from, to) triple.
// Anything absent from the table is an invalid transition.
func buildTransitionTable() transitionTable {
	table := transitionTable{}
	add := func(role domain.Role, from, to domain.WorkflowStatus, rule transitionRule) {
		table[transitionKey{role: role, from: from, to: to}] = rule
	}

	for _, from := range nonTerminalStates {
		for _, role := range []domain.Role{domain.RoleVendor, domain.RoleSuperuser, domain.RoleDO} {
			add(role, from, domain.WorkflowRejected, transitionRule{effect: rejectEffect})
		}
	}

	add(domain.RoleVendor, domain.WorkflowPending, domain.WorkflowVendorVerified, transitionRule{effect: vendorVerifyEffect})
	add(domain.RoleSuperuser, domain.WorkflowPending, domain.WorkflowVendorVerified, transitionRule{effect: vendorVerifyEffect})
	add(domain.RoleDO, domain.WorkflowVendorVerified, domain.WorkflowAssigned, transitionRule{effect: assignEffect})
	add(domain.RoleFO, domain.WorkflowAssigned, domain.WorkflowActionTaken, transitionRule{effect: actionTakenEffect})
	// Resolution requires the FO step to have been recorded; Assigned -> Resolved
	// is deliberately absent.
	add(domain.RoleDO, domain.WorkflowActionTaken, domain.WorkflowResolved, transitionRule{effect: resolveEffect})

	// Superuser privileged override onto the later states.
	for _, from := range nonTerminalStates {
		for _, to := range []domain.WorkflowStatus{domain.WorkflowAssigned, domain.WorkflowActionTaken, domain.WorkflowResolved} {
			if from == to {
				continue
			}
			key := transitionKey{role: domain.RoleSuperuser, from: from, to: to}
			if _, exists := table[key]; exists {
				continue
			}
			table[key] = transitionRule{effect: overrideEffect(to), override: true}
		}
	}
	return table
}

func (t transitionTable) lookup(role domain.Role, from, to domain.WorkflowStatus) (transitionRule, bool) {
	if from.Terminal() || from == to {
		return transitionRule{}, false
	}
	rule, ok := t[transitionKey{role: role, from: from, to: to}]
	return rule, ok
}

// targetsFor lists the states role may request from the given state.
func (t transitionTable) targetsFor(role domain.Role, from domain.WorkflowStatus) []domain.WorkflowStatus {
	out := []domain.WorkflowStatus{}
	for _, to := range domain.WorkflowStatuses {
		if _, ok := t.lookup(role, from, to); ok {
			out = append(out, to)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return stateOrder(out[i]) < stateOrder(out[j]) })
	return out
}

func stateOrder(s domain.WorkflowStatus) int {
	for i, candidate := range domain.WorkflowStatuses {
		if candidate == s {
			return i
		}
	}
	return len(domain.WorkflowStatuses)
}

func rejectEffect(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error {
	tc.fc.WorkflowStatus = domain.WorkflowRejected
	tc.fc.OverallStatus = domain.OverallRejected
	return nil
}

func vendorVerifyEffect(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error {
	tc.fc.WorkflowStatus = domain.WorkflowVendorVerified
	tc.fc.OverallStatus = domain.OverallReviewed
	return nil
}

// assignEffect resolves the outlet's FO through the hierarchy. The caller's
// officer is only used when no mapping exists.
func assignEffect(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error {
	officer, found, err := dir.FieldOfficerFor(ctx, tc.fc.OutletCode)
	if err != nil {
		return err
	}
	if !found {
		if tc.officer == nil || strings.TrimSpace(*tc.officer) == "" {
			return apperrors.NewUnresolvedAssignment(tc.fc.OutletCode, string(domain.RoleFO))
		}
		officer = strings.TrimSpace(*tc.officer)
		tc.manual = true
	}
	tc.fc.AssignedOfficer = &officer
	tc.fc.WorkflowStatus = domain.WorkflowAssigned
	tc.fc.OverallStatus = domain.OverallVerified
	return nil
}

func actionTakenEffect(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error {
	if tc.fc.AssignedOfficer == nil || *tc.fc.AssignedOfficer != tc.actor.ID {
		return apperrors.NewForbidden("not assigned to this case")
	}
	tc.fc.WorkflowStatus = domain.WorkflowActionTaken
	return nil
}

func resolveEffect(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error {
	tc.fc.WorkflowStatus = domain.WorkflowResolved
	tc.fc.OverallStatus = domain.OverallResolved
	return nil
}

// overrideEffect forces a case onto target. Assigned and ActionTaken still need
// an officer: the one supplied, the one already recorded, or the outlet's FO.
func overrideEffect(target domain.WorkflowStatus) effectFunc {
	return func(ctx context.Context, dir HierarchyDirectory, tc *transitionContext) error {
		switch target {
		case domain.WorkflowAssigned:
			if tc.officer != nil && strings.TrimSpace(*tc.officer) != "" {
				officer := strings.TrimSpace(*tc.officer)
				tc.fc.AssignedOfficer = &officer
				tc.fc.WorkflowStatus = domain.WorkflowAssigned
				tc.fc.OverallStatus = domain.OverallVerified
				tc.manual = true
				return nil
			}
			return assignEffect(ctx, dir, tc)
		case domain.WorkflowActionTaken:
			switch {
			case tc.officer != nil && strings.TrimSpace(*tc.officer) != "":
				officer := strings.TrimSpace(*tc.officer)
				tc.fc.AssignedOfficer = &officer
				tc.fc.OverallStatus = domain.OverallVerified
				tc.manual = true
			case tc.fc.AssignedOfficer == nil:
				// Skipping Assigned still requires someone to have taken the action.
				if err := assignEffect(ctx, dir, tc); err != nil {
					return err
				}
			}
			tc.fc.WorkflowStatus = domain.WorkflowActionTaken
			return nil
		case domain.WorkflowResolved:
			return resolveEffect(ctx, dir, tc)
		}
		return apperrors.NewInvalidTransition(string(tc.fc.WorkflowStatus), string(target))
	}
}
