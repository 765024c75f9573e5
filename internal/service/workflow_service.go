package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/events"
	"github.com/spec-kit/outlet-feedback/internal/observability"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

// WorkflowService advances feedback cases through the role-gated state machine.
type WorkflowService struct {
	cases      repository.FeedbackRepository
	access     *AccessFilter
	directory  HierarchyDirectory
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	table      transitionTable
	now        func() time.Time
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	FeedbackRepo repository.FeedbackRepository
	Access       *AccessFilter
	Directory    HierarchyDirectory
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// TransitionInput describes a requested workflow move.
type TransitionInput struct {
	CaseID          int64
	Target          domain.WorkflowStatus
	OfficerOverride *string
	Comment         string
}

// NewWorkflowService creates the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		cases:      deps.FeedbackRepo,
		access:     deps.Access,
		directory:  deps.Directory,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		table:      buildTransitionTable(),
		now:        time.Now,
	}
}

// AllowedTargets lists the states actor may request from the given state.
func (s *WorkflowService) AllowedTargets(role domain.Role, from domain.WorkflowStatus) []domain.WorkflowStatus {
	return s.table.targetsFor(role, from)
}

// Transition validates and applies one workflow move. Validation runs against
// the state read inside the store's atomic update, so a racing writer is
// either serialized before us or reported as a concurrent modification.
func (s *WorkflowService) Transition(ctx context.Context, actor domain.Actor, input TransitionInput) (*domain.FeedbackCase, error) {
	updated, err := s.transition(ctx, actor, input)
	outcome := "ok"
	if err != nil {
		outcome = apperrors.ToDomainError(err).Code
	}
	s.metrics.RecordTransition(string(actor.Role), string(input.Target), outcome)
	return updated, err
}

func (s *WorkflowService) transition(ctx context.Context, actor domain.Actor, input TransitionInput) (*domain.FeedbackCase, error) {
	if !input.Target.Valid() {
		return nil, apperrors.NewValidationError("unknown workflow status", map[string]any{"status": input.Target})
	}

	fc, err := s.cases.GetByID(ctx, input.CaseID)
	if err != nil {
		return nil, missingCaseError(actor, input.CaseID, err)
	}
	allowed, err := s.access.CanAccess(ctx, actor, fc)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !allowed {
		return nil, apperrors.NewForbidden("not authorized for this feedback")
	}

	var (
		before domain.FeedbackCase
		rule   transitionRule
		tc     transitionContext
	)
	updated, err := s.cases.UpdateWithHistory(ctx, input.CaseID, func(current *domain.FeedbackCase) (*domain.ReviewHistory, error) {
		before = *current.Clone()
		var ok bool
		rule, ok = s.table.lookup(actor.Role, current.WorkflowStatus, input.Target)
		if !ok {
			return nil, apperrors.NewInvalidTransition(string(current.WorkflowStatus), string(input.Target))
		}
		tc = transitionContext{actor: actor, fc: current, officer: input.OfficerOverride}
		if err := rule.effect(ctx, s.directory, &tc); err != nil {
			return nil, err
		}
		now := s.now().UTC()
		reviewer := actor.ID
		current.ReviewedAt = &now
		current.ReviewedBy = &reviewer

		return &domain.ReviewHistory{
			ID:              uuid.NewString(),
			ActorID:         actor.ID,
			ActorRole:       actor.Role,
			OldState:        before.WorkflowStatus,
			NewState:        current.WorkflowStatus,
			OldOverall:      before.OverallStatus,
			NewOverall:      current.OverallStatus,
			AssignedOfficer: current.AssignedOfficer,
			Override:        rule.override || tc.manual,
			Comment:         strings.TrimSpace(input.Comment),
			CreatedAt:       now,
		}, nil
	})
	if err != nil {
		return nil, mapStoreError(err, input.CaseID)
	}

	s.logger.Info("feedback workflow transitioned",
		zap.Int64("case_id", updated.ID),
		zap.String("actor", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.String("from", string(before.WorkflowStatus)),
		zap.String("to", string(updated.WorkflowStatus)),
		zap.Bool("override", rule.override || tc.manual))
	s.publishTransition(ctx, actor, &before, updated, rule.override, tc.manual)
	return updated, nil
}

func mapStoreError(err error, caseID int64) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("feedback", map[string]any{"id": caseID})
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConcurrentModification("feedback", strconv.FormatInt(caseID, 10))
	default:
		return apperrors.MapError(err)
	}
}

func (s *WorkflowService) publishTransition(ctx context.Context, actor domain.Actor, before, after *domain.FeedbackCase, override, manual bool) {
	if s.dispatcher == nil {
		return
	}
	eventActor := events.Actor{ID: actor.ID, Role: actor.Role}
	s.publish(ctx, events.Event{
		Type:   events.EventFeedbackTransitioned,
		CaseID: after.ID,
		Actor:  eventActor,
		Payload: events.FeedbackTransitionedPayload{
			OutletCode: after.OutletCode,
			OldState:   before.WorkflowStatus,
			NewState:   after.WorkflowStatus,
			OldOverall: before.OverallStatus,
			NewOverall: after.OverallStatus,
			Override:   override,
		},
	})
	if after.WorkflowStatus == domain.WorkflowAssigned && after.AssignedOfficer != nil {
		s.publish(ctx, events.Event{
			Type:   events.EventFeedbackAssigned,
			CaseID: after.ID,
			Actor:  eventActor,
			Payload: events.FeedbackAssignedPayload{
				OutletCode:      after.OutletCode,
				AssignedOfficer: *after.AssignedOfficer,
				Manual:          manual,
			},
		})
	}
}

// publish is fire-and-forget: the transition is already committed.
func (s *WorkflowService) publish(ctx context.Context, event events.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("workflow event delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("case_id", event.CaseID),
			zap.Error(err))
	}
}
