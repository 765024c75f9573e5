package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/outlet-feedback/internal/api/dto"
	"github.com/spec-kit/outlet-feedback/internal/auth"
	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	"github.com/spec-kit/outlet-feedback/internal/service"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

const dateOnly = "2006-01-02"

// FeedbackHandler serves the admin portal feedback endpoints.
type FeedbackHandler struct {
	feedback *service.FeedbackService
	workflow *service.WorkflowService
}

// NewFeedbackHandler constructs handler.
func NewFeedbackHandler(feedback *service.FeedbackService, workflow *service.WorkflowService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, workflow: workflow}
}

// ListFeedbacks GET /api/feedbacks.
func (h *FeedbackHandler) ListFeedbacks(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseCaseFilter(c)
	if err != nil {
		return err
	}
	page, err := h.feedback.ListCases(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.FeedbackSummary, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, feedbackSummary(&page.Items[i]))
	}
	totalPages := 0
	if page.Limit > 0 {
		totalPages = (page.Total + page.Limit - 1) / page.Limit
	}
	return c.JSON(fiber.Map{"data": dto.FeedbackListResponse{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: totalPages,
	}})
}

// GetFeedback GET /api/feedbacks/:id.
func (h *FeedbackHandler) GetFeedback(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseCaseID(c)
	if err != nil {
		return err
	}
	fc, err := h.feedback.GetCase(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	detail := feedbackDetail(fc)
	detail.AllowedActions = h.workflow.AllowedTargets(actor.Role, fc.WorkflowStatus)
	return c.JSON(fiber.Map{"data": detail})
}

// UpdateWorkflow PATCH /api/feedbacks/:id/workflow.
func (h *FeedbackHandler) UpdateWorkflow(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseCaseID(c)
	if err != nil {
		return err
	}
	var req dto.WorkflowUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	target, ok := domain.ParseWorkflowStatus(strings.TrimSpace(req.Status))
	if !ok {
		return apperrors.NewValidationError("unknown workflow status", map[string]any{"status": req.Status})
	}
	fc, err := h.workflow.Transition(c.UserContext(), actor, service.TransitionInput{
		CaseID:          id,
		Target:          target,
		OfficerOverride: req.AssignedTo,
		Comment:         req.Comment,
	})
	if err != nil {
		return err
	}
	detail := feedbackDetail(fc)
	detail.AllowedActions = h.workflow.AllowedTargets(actor.Role, fc.WorkflowStatus)
	return c.JSON(fiber.Map{"data": detail})
}

// Review PATCH /api/feedbacks/:id/review.
func (h *FeedbackHandler) Review(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseCaseID(c)
	if err != nil {
		return err
	}
	var req dto.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status := domain.OverallReviewed
	if raw := strings.TrimSpace(req.Status); raw != "" {
		parsed, ok := domain.ParseOverallStatus(raw)
		if !ok {
			return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
		}
		status = parsed
	}
	fc, err := h.feedback.Review(c.UserContext(), actor, service.ReviewInput{
		CaseID:  id,
		Status:  status,
		Comment: req.Comment,
	})
	if err != nil {
		return err
	}
	detail := feedbackDetail(fc)
	detail.AllowedActions = h.workflow.AllowedTargets(actor.Role, fc.WorkflowStatus)
	return c.JSON(fiber.Map{"data": detail})
}

// ListHistory GET /api/feedbacks/:id/history.
func (h *FeedbackHandler) ListHistory(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseCaseID(c)
	if err != nil {
		return err
	}
	limit := parseInt(c.Query("limit"), 100)
	offset := (parseInt(c.Query("page"), 1) - 1) * limit
	entries, err := h.feedback.ListHistory(c.UserContext(), actor, id, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.ReviewHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.ReviewHistoryResponse{
			ID:              entry.ID,
			ReviewedBy:      entry.ActorID,
			ReviewerRole:    entry.ActorRole,
			OldStatus:       entry.OldState,
			NewStatus:       entry.NewState,
			OldOverall:      entry.OldOverall,
			NewOverall:      entry.NewOverall,
			AssignedOfficer: entry.AssignedOfficer,
			Override:        entry.Override,
			Comment:         entry.Comment,
			ReviewedAt:      entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Dashboard GET /api/dashboard.
func (h *FeedbackHandler) Dashboard(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseCaseFilter(c)
	if err != nil {
		return err
	}
	stats, err := h.feedback.Dashboard(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DashboardResponse{
		Total:       stats.Total,
		Pending:     stats.ByStatus[domain.OverallPending],
		Verified:    stats.ByStatus[domain.OverallVerified],
		NotVerified: stats.ByStatus[domain.OverallNotVerified],
		Reviewed:    stats.ByStatus[domain.OverallReviewed],
		Resolved:    stats.ByStatus[domain.OverallResolved],
		Rejected:    stats.ByStatus[domain.OverallRejected],
		LastUpdated: time.Now().UTC(),
	}})
}

// DailyComplaints GET /api/dashboard/daily-complaints.
func (h *FeedbackHandler) DailyComplaints(c *fiber.Ctx) error {
	return h.dailyChart(c, h.feedback.DailyComplaints)
}

// NotVerifiedDistribution GET /api/dashboard/not-verified-distribution.
func (h *FeedbackHandler) NotVerifiedDistribution(c *fiber.Ctx) error {
	return h.dailyChart(c, h.feedback.NotVerifiedDistribution)
}

type dailyQuery func(ctx context.Context, actor domain.Actor, from, to *time.Time) ([]repository.DailyCount, error)

func (h *FeedbackHandler) dailyChart(c *fiber.Ctx, query dailyQuery) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	from, to, err := parseChartRange(c)
	if err != nil {
		return err
	}
	days, err := query(c.UserContext(), actor, from, to)
	if err != nil {
		return err
	}
	items := make([]dto.DailyCountResponse, 0, len(days))
	for _, day := range days {
		items = append(items, dto.DailyCountResponse{Date: day.Day.Format(dateOnly), Count: day.Count})
	}
	return c.JSON(fiber.Map{"data": items})
}

// RatingChart serves one facility's rating distribution, e.g.
// GET /api/dashboard/washroom-feedback.
func (h *FeedbackHandler) RatingChart(dimension domain.RatingDimension) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := requireActor(c)
		if err != nil {
			return err
		}
		from, to, err := parseChartRange(c)
		if err != nil {
			return err
		}
		dist, err := h.feedback.RatingDistribution(c.UserContext(), actor, dimension, from, to)
		if err != nil {
			return err
		}
		items := make([]dto.RatingBucketResponse, 0, len(dist.Buckets))
		for _, b := range dist.Buckets {
			items = append(items, dto.RatingBucketResponse{Name: b.Name, Count: b.Count, Value: b.Percent})
		}
		return c.JSON(fiber.Map{"data": items, "total": dist.Total})
	}
}

func parseChartRange(c *fiber.Ctx) (*time.Time, *time.Time, error) {
	from, err := parseDate(c.Query("startDate"), false)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseDate(c.Query("endDate"), true)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// FilterOptions GET /api/filters/options.
func (h *FeedbackHandler) FilterOptions(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	opts, err := h.feedback.FilterOptions(c.UserContext(), actor)
	if err != nil {
		return err
	}
	resp := dto.FilterOptionsResponse{
		Outlets:  make([]dto.Option, 0, len(opts.Outlets)),
		Statuses: make([]dto.Option, 0, len(opts.Statuses)),
	}
	for _, outlet := range opts.Outlets {
		resp.Outlets = append(resp.Outlets, dto.Option{Label: outlet.Label(), Value: outlet.Code})
	}
	for _, status := range opts.Statuses {
		resp.Statuses = append(resp.Statuses, dto.Option{Label: string(status), Value: string(status)})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// FieldOfficers GET /api/outlets/:code/field-officers.
func (h *FeedbackHandler) FieldOfficers(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	officers, err := h.feedback.FieldOfficers(c.UserContext(), actor, c.Params("code"))
	if err != nil {
		return err
	}
	items := make([]dto.OfficerResponse, 0, len(officers))
	for _, o := range officers {
		items = append(items, dto.OfficerResponse{Username: o.Username, FullName: o.FullName, Outlet: o.HomeOutlet})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ExportCSV GET /api/feedbacks/export/csv.
func (h *FeedbackHandler) ExportCSV(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseCaseFilter(c)
	if err != nil {
		return err
	}
	offset := 0
	if raw := c.Query("timezone_offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("timezone_offset must be minutes", nil)
		}
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=feedbacks_%s.csv", time.Now().UTC().Format("20060102150405")))
	return h.feedback.ExportCSV(c.UserContext(), actor, filter, c.Response().BodyWriter(), offset)
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseCaseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid feedback id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseCaseFilter(c *fiber.Ctx) (service.CaseListFilter, error) {
	filter := service.CaseListFilter{
		SortBy:   c.Query("sortBy", "created_at"),
		SortDesc: !strings.EqualFold(c.Query("sortOrder", "desc"), "asc"),
		Page:     parseInt(c.Query("page"), 1),
		Limit:    parseInt(c.Query("limit"), 20),
	}
	if code := strings.TrimSpace(c.Query("roCode")); code != "" {
		filter.OutletCode = &code
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}
	if officer := strings.TrimSpace(c.Query("assignedTo")); officer != "" {
		filter.AssignedOfficer = &officer
	}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.OverallStatuses = append(filter.OverallStatuses, domain.OverallStatus(part))
			}
		}
	}
	if statuses := c.Query("workflowStatus"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			status, ok := domain.ParseWorkflowStatus(strings.TrimSpace(part))
			if !ok {
				return filter, apperrors.NewValidationError("unknown workflow status", map[string]any{"workflowStatus": part})
			}
			filter.WorkflowStatuses = append(filter.WorkflowStatuses, status)
		}
	}

	var err error
	if filter.CreatedFrom, err = parseDate(c.Query("startDate"), false); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseDate(c.Query("endDate"), true); err != nil {
		return filter, err
	}
	filter.RatingAir = parseOptionalInt(c.Query("ratingAir"))
	filter.RatingWashroom = parseOptionalInt(c.Query("ratingWashroom"))
	filter.IsTestimonial = parseOptionalBool(c.Query("isTestimonial"))
	filter.HasReceipt = parseOptionalBool(c.Query("hasReceipt"))
	return filter, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. A bare end date covers the whole day.
func parseDate(val string, endOfDay bool) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t, nil
	}
	day := val
	if idx := strings.Index(day, "T"); idx > 0 {
		day = day[:idx]
	}
	t, err := time.Parse(dateOnly, day)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid date format, use YYYY-MM-DD", map[string]any{"value": val})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseOptionalInt(val string) *int {
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseOptionalBool(val string) *bool {
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &parsed
}

func feedbackSummary(fc *domain.FeedbackCase) dto.FeedbackSummary {
	return dto.FeedbackSummary{
		ID:              fc.ID,
		OutletCode:      fc.OutletCode,
		Status:          fc.OverallStatus,
		WorkflowStatus:  fc.WorkflowStatus,
		AssignedOfficer: fc.AssignedOfficer,
		Phone:           fc.Phone,
		RatingAir:       fc.RatingAir,
		RatingWashroom:  fc.RatingWashroom,
		RatingWater:     fc.RatingWater,
		IsTestimonial:   fc.IsTestimonial,
		CreatedAt:       fc.CreatedAt,
	}
}

func feedbackDetail(fc *domain.FeedbackCase) dto.FeedbackDetailResponse {
	return dto.FeedbackDetailResponse{
		FeedbackSummary:  feedbackSummary(fc),
		Method:           fc.Method,
		Comment:          fc.Comment,
		HasPhotoAir:      fc.HasPhotoAir,
		HasPhotoWashroom: fc.HasPhotoWashroom,
		HasPhotoWater:    fc.HasPhotoWater,
		HasReceipt:       fc.HasReceipt,
		ReviewedAt:       fc.ReviewedAt,
		ReviewedBy:       fc.ReviewedBy,
		Version:          fc.Version,
		UpdatedAt:        fc.UpdatedAt,
		AllowedActions:   []domain.WorkflowStatus{},
	}
}
