package domain

import "time"

// WorkflowStatus is the fine-grained internal position of a case.
type WorkflowStatus string

const (
	WorkflowPending        WorkflowStatus = "Pending"
	WorkflowVendorVerified WorkflowStatus = "Vendor Verified"
	WorkflowAssigned       WorkflowStatus = "Assigned"
	WorkflowActionTaken    WorkflowStatus = "Action Taken"
	WorkflowResolved       WorkflowStatus = "Resolved"
	WorkflowRejected       WorkflowStatus = "Rejected"
)

// WorkflowStatuses lists every workflow state in lifecycle order.
var WorkflowStatuses = []WorkflowStatus{
	WorkflowPending,
	WorkflowVendorVerified,
	WorkflowAssigned,
	WorkflowActionTaken,
	WorkflowResolved,
	WorkflowRejected,
}

// Terminal reports whether no further transitions are permitted.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowResolved || s == WorkflowRejected
}

// Valid reports whether s is a known workflow state.
func (s WorkflowStatus) Valid() bool {
	for _, candidate := range WorkflowStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWorkflowStatus accepts the display form ("Vendor Verified") as well as
// the compact form ("VendorVerified").
func ParseWorkflowStatus(raw string) (WorkflowStatus, bool) {
	for _, candidate := range WorkflowStatuses {
		if string(candidate) == raw || compact(string(candidate)) == raw {
			return candidate, true
		}
	}
	return "", false
}

// OverallStatus is the coarse customer-facing status derived from the workflow.
type OverallStatus string

const (
	OverallPending     OverallStatus = "Pending"
	OverallVerified    OverallStatus = "Verified"
	OverallNotVerified OverallStatus = "Not Verified"
	OverallReviewed    OverallStatus = "Reviewed"
	OverallResolved    OverallStatus = "Resolved"
	OverallRejected    OverallStatus = "Rejected"
)

// OverallStatuses lists every customer-facing status.
var OverallStatuses = []OverallStatus{
	OverallPending,
	OverallVerified,
	OverallNotVerified,
	OverallReviewed,
	OverallResolved,
	OverallRejected,
}

// ParseOverallStatus accepts the display form ("Not Verified") as well as the
// compact form ("NotVerified").
func ParseOverallStatus(raw string) (OverallStatus, bool) {
	for _, candidate := range OverallStatuses {
		if string(candidate) == raw || compact(string(candidate)) == raw {
			return candidate, true
		}
	}
	return "", false
}

// Reviewable reports whether a manual review may set s.
func (s OverallStatus) Reviewable() bool {
	return s == OverallVerified || s == OverallNotVerified || s == OverallReviewed
}

// RatingDimension names one of the rated facilities.
type RatingDimension string

const (
	RatingAir      RatingDimension = "air"
	RatingWashroom RatingDimension = "washroom"
	RatingWater    RatingDimension = "water"
)

// FeedbackCase is one customer submission and its workflow position.
type FeedbackCase struct {
	ID              int64
	OutletCode      string
	OverallStatus   OverallStatus
	WorkflowStatus  WorkflowStatus
	AssignedOfficer *string
	Version         int64

	Phone            string
	Method           string
	IsTestimonial    bool
	RatingAir        *int
	RatingWashroom   *int
	RatingWater      *int
	Comment          *string
	HasPhotoAir      bool
	HasPhotoWashroom bool
	HasPhotoWater    bool
	HasReceipt       bool

	ReviewedAt *time.Time
	ReviewedBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (c *FeedbackCase) Clone() *FeedbackCase {
	if c == nil {
		return nil
	}
	out := *c
	out.AssignedOfficer = cloneString(c.AssignedOfficer)
	out.Comment = cloneString(c.Comment)
	out.ReviewedBy = cloneString(c.ReviewedBy)
	out.RatingAir = cloneInt(c.RatingAir)
	out.RatingWashroom = cloneInt(c.RatingWashroom)
	out.RatingWater = cloneInt(c.RatingWater)
	if c.ReviewedAt != nil {
		t := *c.ReviewedAt
		out.ReviewedAt = &t
	}
	return &out
}

// Rating returns the case's score for dimension, or nil when it was not rated.
func (c *FeedbackCase) Rating(dimension RatingDimension) *int {
	switch dimension {
	case RatingAir:
		return c.RatingAir
	case RatingWashroom:
		return c.RatingWashroom
	case RatingWater:
		return c.RatingWater
	}
	return nil
}

func compact(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	i := *v
	return &i
}
