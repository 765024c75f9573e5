package events

import (
	"time"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventFeedbackTransitioned EventType = "feedback.transitioned"
	EventFeedbackAssigned     EventType = "feedback.assigned"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    int64       `json:"case_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// FeedbackTransitionedPayload payload.
type FeedbackTransitionedPayload struct {
	OutletCode string                `json:"outlet_code"`
	OldState   domain.WorkflowStatus `json:"old_state"`
	NewState   domain.WorkflowStatus `json:"new_state"`
	OldOverall domain.OverallStatus  `json:"old_overall"`
	NewOverall domain.OverallStatus  `json:"new_overall"`
	Override   bool                  `json:"override,omitempty"`
}

// FeedbackAssignedPayload payload.
type FeedbackAssignedPayload struct {
	OutletCode      string `json:"outlet_code"`
	AssignedOfficer string `json:"assigned_officer"`
	Manual          bool   `json:"manual,omitempty"`
}
