package service

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

const exportBatchSize = 500

// FeedbackService serves hierarchy-scoped reads over feedback cases.
type FeedbackService struct {
	cases    repository.FeedbackRepository
	history  repository.ReviewHistoryRepository
	outlets  repository.OutletRepository
	edges    repository.AssignmentRepository
	officers repository.OfficerRepository
	access   *AccessFilter
	scopes   HierarchyDirectory
	logger   *zap.Logger
	now      func() time.Time
}

// FeedbackDependencies bundles repositories for the feedback service.
type FeedbackDependencies struct {
	FeedbackRepo   repository.FeedbackRepository
	HistoryRepo    repository.ReviewHistoryRepository
	OutletRepo     repository.OutletRepository
	AssignmentRepo repository.AssignmentRepository
	OfficerRepo    repository.OfficerRepository
	Access         *AccessFilter
	// Scopes resolves the outlet list offered in filter options. It may be
	// the cached directory.
	Scopes HierarchyDirectory
	Logger *zap.Logger
}

// CaseListFilter describes list filters accepted from callers.
type CaseListFilter struct {
	OutletCode       *string
	OverallStatuses  []domain.OverallStatus
	WorkflowStatuses []domain.WorkflowStatus
	AssignedOfficer  *string
	SearchTerm       *string
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
	RatingAir        *int
	RatingWashroom   *int
	IsTestimonial    *bool
	HasReceipt       *bool
	SortBy           string
	SortDesc         bool
	Page             int
	Limit            int
}

// CasePage is one page of scoped cases.
type CasePage struct {
	Items []domain.FeedbackCase
	Total int
	Page  int
	Limit int
}

// DashboardStats summarises overall statuses within scope.
type DashboardStats struct {
	Total    int
	ByStatus map[domain.OverallStatus]int
}

// FilterOptions lists the outlets and workflow states an actor may filter by.
type FilterOptions struct {
	Outlets  []domain.Outlet
	Statuses []domain.WorkflowStatus
}

// NewFeedbackService constructs the service.
func NewFeedbackService(deps FeedbackDependencies) *FeedbackService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scopes := deps.Scopes
	if scopes == nil && deps.Access != nil {
		scopes = deps.Access.scopes
	}
	return &FeedbackService{
		cases:    deps.FeedbackRepo,
		history:  deps.HistoryRepo,
		outlets:  deps.OutletRepo,
		edges:    deps.AssignmentRepo,
		officers: deps.OfficerRepo,
		access:   deps.Access,
		scopes:   scopes,
		logger:   logger,
		now:      time.Now,
	}
}

// ListCases returns a page of cases the actor may see. Scoping is always applied.
func (s *FeedbackService) ListCases(ctx context.Context, actor domain.Actor, filter CaseListFilter) (*CasePage, error) {
	repoFilter, page, limit := toRepositoryFilter(filter)
	scoped, err := s.access.Scope(ctx, actor, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	items, total, err := s.cases.List(ctx, scoped)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &CasePage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// GetCase fetches a single case after the point access check. Restricted
// roles cannot tell a missing id from one outside their hierarchy.
func (s *FeedbackService) GetCase(ctx context.Context, actor domain.Actor, id int64) (*domain.FeedbackCase, error) {
	fc, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, missingCaseError(actor, id, err)
	}
	allowed, err := s.access.CanAccess(ctx, actor, fc)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !allowed {
		return nil, apperrors.NewForbidden("not authorized for this feedback")
	}
	return fc, nil
}

// ReviewInput records a reviewer's verdict on a case.
type ReviewInput struct {
	CaseID  int64
	Status  domain.OverallStatus
	Comment string
}

// Review sets the overall status of an open case and appends an audit entry.
// The workflow state is left alone.
func (s *FeedbackService) Review(ctx context.Context, actor domain.Actor, input ReviewInput) (*domain.FeedbackCase, error) {
	if !input.Status.Reviewable() {
		return nil, apperrors.NewValidationError("status must be Verified, Not Verified or Reviewed", map[string]any{"status": input.Status})
	}
	switch actor.Role {
	case domain.RoleVendor, domain.RoleSuperuser, domain.RoleDO:
	default:
		return nil, apperrors.NewForbidden("role may not review feedback")
	}
	if _, err := s.GetCase(ctx, actor, input.CaseID); err != nil {
		return nil, err
	}

	var previous domain.OverallStatus
	updated, err := s.cases.UpdateWithHistory(ctx, input.CaseID, func(current *domain.FeedbackCase) (*domain.ReviewHistory, error) {
		if current.WorkflowStatus.Terminal() {
			return nil, apperrors.NewInvalidTransition(string(current.WorkflowStatus), string(input.Status))
		}
		previous = current.OverallStatus
		now := s.now().UTC()
		reviewer := actor.ID
		current.OverallStatus = input.Status
		current.ReviewedAt = &now
		current.ReviewedBy = &reviewer

		return &domain.ReviewHistory{
			ID:              uuid.NewString(),
			ActorID:         actor.ID,
			ActorRole:       actor.Role,
			OldState:        current.WorkflowStatus,
			NewState:        current.WorkflowStatus,
			OldOverall:      previous,
			NewOverall:      current.OverallStatus,
			AssignedOfficer: current.AssignedOfficer,
			Comment:         strings.TrimSpace(input.Comment),
			CreatedAt:       now,
		}, nil
	})
	if err != nil {
		return nil, mapStoreError(err, input.CaseID)
	}

	s.logger.Info("feedback reviewed",
		zap.Int64("case_id", updated.ID),
		zap.String("actor", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.OverallStatus)))
	return updated, nil
}

// ListHistory returns the audit trail for a case the actor may see.
func (s *FeedbackService) ListHistory(ctx context.Context, actor domain.Actor, id int64, limit, offset int) ([]domain.ReviewHistory, error) {
	if _, err := s.GetCase(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByCase(ctx, id, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// Dashboard counts cases by overall status within the actor's scope.
func (s *FeedbackService) Dashboard(ctx context.Context, actor domain.Actor, filter CaseListFilter) (*DashboardStats, error) {
	repoFilter, _, _ := toRepositoryFilter(filter)
	scoped, err := s.access.Scope(ctx, actor, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.cases.CountByOverallStatus(ctx, scoped)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	stats := &DashboardStats{ByStatus: make(map[domain.OverallStatus]int, len(domain.OverallStatuses))}
	for _, status := range domain.OverallStatuses {
		stats.ByStatus[status] = counts[status]
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// FilterOptions lists outlets visible to the actor, sorted by label.
func (s *FeedbackService) FilterOptions(ctx context.Context, actor domain.Actor) (*FilterOptions, error) {
	set, err := s.scopes.OutletsFor(ctx, actor)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	var codes []string
	if !set.All {
		codes = set.Codes
		if codes == nil {
			codes = []string{}
		}
	}
	outlets, err := s.outlets.List(ctx, codes)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	sort.Slice(outlets, func(i, j int) bool { return outlets[i].Label() < outlets[j].Label() })
	return &FilterOptions{
		Outlets:  outlets,
		Statuses: append([]domain.WorkflowStatus{}, domain.WorkflowStatuses...),
	}, nil
}

// FieldOfficers lists the FOs mapped to an outlet, for manual assignment.
func (s *FeedbackService) FieldOfficers(ctx context.Context, actor domain.Actor, outletCode string) ([]domain.Officer, error) {
	switch actor.Role {
	case domain.RoleVendor, domain.RoleSuperuser, domain.RoleDO:
	default:
		return nil, apperrors.NewForbidden("role may not list field officers")
	}
	allowed, err := s.access.CanAccessOutlet(ctx, actor, outletCode)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !allowed {
		return nil, apperrors.NewForbidden("not authorized for this outlet")
	}
	usernames, err := s.edges.UsernamesForOutlet(ctx, outletCode, domain.RoleFO)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(usernames) == 0 {
		return []domain.Officer{}, nil
	}
	officers, err := s.officers.ListByUsernames(ctx, usernames)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	out := officers[:0]
	for _, o := range officers {
		if o.Role == domain.RoleFO {
			out = append(out, o)
		}
	}
	return out, nil
}

// ExportCSV streams every case in scope to w, newest first. Timestamps are
// shifted by tzOffsetMinutes from UTC.
func (s *FeedbackService) ExportCSV(ctx context.Context, actor domain.Actor, filter CaseListFilter, w io.Writer, tzOffsetMinutes int) error {
	repoFilter, _, _ := toRepositoryFilter(filter)
	repoFilter.SortBy = "created_at"
	repoFilter.SortDesc = true
	repoFilter.Limit = exportBatchSize
	scoped, err := s.access.Scope(ctx, actor, repoFilter)
	if err != nil {
		return apperrors.MapError(err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	shift := time.Duration(tzOffsetMinutes) * time.Minute
	rows := 0
	for offset := 0; ; offset += exportBatchSize {
		scoped.Offset = offset
		items, total, err := s.cases.List(ctx, scoped)
		if err != nil {
			return apperrors.MapError(err)
		}
		for i := range items {
			if err := writer.Write(exportRow(&items[i], shift)); err != nil {
				return err
			}
		}
		rows += len(items)
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		if len(items) < exportBatchSize || offset+len(items) >= total {
			break
		}
	}
	s.logger.Info("feedback export written",
		zap.String("actor", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.Int("rows", rows))
	return nil
}

var exportHeader = []string{
	"ID", "Date", "Phone Number", "RO Code", "Free Air Rating", "Washroom Rating",
	"Drinking Water Rating", "Comments", "Status", "Reviewed By",
}

func exportRow(fc *domain.FeedbackCase, shift time.Duration) []string {
	outlet := fc.OutletCode
	if outlet == "" {
		outlet = "N/A"
	}
	reviewer := "N/A"
	if fc.ReviewedBy != nil && *fc.ReviewedBy != "" {
		reviewer = *fc.ReviewedBy
	}
	comment := ""
	if fc.Comment != nil {
		comment = *fc.Comment
	}
	date := ""
	if !fc.CreatedAt.IsZero() {
		date = fc.CreatedAt.UTC().Add(shift).Format("2006-01-02 15:04")
	}
	return []string{
		strconv.FormatInt(fc.ID, 10),
		date,
		fc.Phone,
		outlet,
		formatRating(fc.RatingAir),
		formatRating(fc.RatingWashroom),
		formatRating(fc.RatingWater),
		comment,
		string(fc.OverallStatus),
		reviewer,
	}
}

func formatRating(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// toRepositoryFilter converts a page number into an offset.
func toRepositoryFilter(filter CaseListFilter) (repository.FeedbackFilter, int, int) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	return repository.FeedbackFilter{
		OutletCode:       filter.OutletCode,
		OverallStatuses:  filter.OverallStatuses,
		WorkflowStatuses: filter.WorkflowStatuses,
		AssignedOfficer:  filter.AssignedOfficer,
		SearchTerm:       filter.SearchTerm,
		CreatedFrom:      filter.CreatedFrom,
		CreatedTo:        filter.CreatedTo,
		RatingAir:        filter.RatingAir,
		RatingWashroom:   filter.RatingWashroom,
		IsTestimonial:    filter.IsTestimonial,
		HasReceipt:       filter.HasReceipt,
		SortBy:           filter.SortBy,
		SortDesc:         filter.SortDesc,
		Limit:            limit,
		Offset:           (page - 1) * limit,
	}, page, limit
}
