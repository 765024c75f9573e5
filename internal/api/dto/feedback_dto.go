package dto

import (
	"time"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// WorkflowUpdateRequest payload for PATCH /api/feedbacks/:id/workflow.
type WorkflowUpdateRequest struct {
	Status     string  `json:"status"`
	AssignedTo *string `json:"assignedTo"`
	Comment    string  `json:"comment"`
}

// ReviewRequest payload for PATCH /api/feedbacks/:id/review. An empty status
// means Reviewed.
type ReviewRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// FeedbackSummary list item.
type FeedbackSummary struct {
	ID              int64                 `json:"id"`
	OutletCode      string                `json:"ro_code"`
	Status          domain.OverallStatus  `json:"status"`
	WorkflowStatus  domain.WorkflowStatus `json:"workflow_status"`
	AssignedOfficer *string               `json:"assigned_to"`
	Phone           string                `json:"phone"`
	RatingAir       *int                  `json:"rating_air"`
	RatingWashroom  *int                  `json:"rating_washroom"`
	RatingWater     *int                  `json:"rating_water"`
	IsTestimonial   bool                  `json:"is_testimonial"`
	CreatedAt       time.Time             `json:"created_at"`
}

// FeedbackDetailResponse provides full case info.
type FeedbackDetailResponse struct {
	FeedbackSummary
	Method           string                  `json:"feedback_method"`
	Comment          *string                 `json:"comment"`
	HasPhotoAir      bool                    `json:"has_photo_air"`
	HasPhotoWashroom bool                    `json:"has_photo_washroom"`
	HasPhotoWater    bool                    `json:"has_photo_water"`
	HasReceipt       bool                    `json:"has_receipt"`
	ReviewedAt       *time.Time              `json:"reviewed_at"`
	ReviewedBy       *string                 `json:"reviewed_by"`
	Version          int64                   `json:"version"`
	UpdatedAt        time.Time               `json:"updated_at"`
	AllowedActions   []domain.WorkflowStatus `json:"allowed_actions"`
}

// FeedbackListResponse is one page of cases.
type FeedbackListResponse struct {
	Items      []FeedbackSummary `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"total_pages"`
}

// ReviewHistoryResponse is one audit entry.
type ReviewHistoryResponse struct {
	ID              string                `json:"id"`
	ReviewedBy      string                `json:"reviewed_by"`
	ReviewerRole    domain.Role           `json:"reviewer_role"`
	OldStatus       domain.WorkflowStatus `json:"old_status"`
	NewStatus       domain.WorkflowStatus `json:"new_status"`
	OldOverall      domain.OverallStatus  `json:"old_overall"`
	NewOverall      domain.OverallStatus  `json:"new_overall"`
	AssignedOfficer *string               `json:"assigned_to"`
	Override        bool                  `json:"override"`
	Comment         string                `json:"comment"`
	ReviewedAt      time.Time             `json:"reviewed_at"`
}

// DashboardResponse counts by overall status.
type DashboardResponse struct {
	Total       int       `json:"total_feedbacks"`
	Pending     int       `json:"pending_feedbacks"`
	Verified    int       `json:"verified_feedbacks"`
	NotVerified int       `json:"not_verified_feedbacks"`
	Reviewed    int       `json:"reviewed_feedbacks"`
	Resolved    int       `json:"resolved_feedbacks"`
	Rejected    int       `json:"rejected_feedbacks"`
	LastUpdated time.Time `json:"last_updated"`
}

// Option is a label/value pair for filter dropdowns.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FilterOptionsResponse lists outlets and statuses.
type FilterOptionsResponse struct {
	Outlets  []Option `json:"ro_codes"`
	Statuses []Option `json:"statuses"`
}

// OfficerResponse describes a field officer.
type OfficerResponse struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Outlet   string `json:"ro_code,omitempty"`
}

// DailyCountResponse is one point of a per-day chart.
type DailyCountResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// RatingBucketResponse is one slice of a rating pie chart.
type RatingBucketResponse struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}
