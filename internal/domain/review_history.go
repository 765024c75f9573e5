package domain

import "time"

// ReviewHistory is an immutable audit trail entry for one workflow transition.
type ReviewHistory struct {
	ID              string
	CaseID          int64
	ActorID         string
	ActorRole       Role
	OldState        WorkflowStatus
	NewState        WorkflowStatus
	OldOverall      OverallStatus
	NewOverall      OverallStatus
	AssignedOfficer *string
	Override        bool
	Comment         string
	CreatedAt       time.Time
}
