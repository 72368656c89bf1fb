package model

import (
	"strings"
	"time"

	"projectmonitor/pkg/apperr"
)

type MilestoneStatus string

const (
	// MilestoneNotStarted is stored only; it reads as IN_PROGRESS.
	MilestoneNotStarted      MilestoneStatus = "NOT_STARTED"
	MilestoneInProgress      MilestoneStatus = "IN_PROGRESS"
	MilestonePendingApproval MilestoneStatus = "PENDING_APPROVAL"
	MilestoneQueried         MilestoneStatus = "QUERIED"
	MilestoneCompleted       MilestoneStatus = "COMPLETED"
)

// ParseStoredMilestoneStatus validates a raw status read from storage.
// PENDING_APPROVAL and QUERIED are never stored.
func ParseStoredMilestoneStatus(s string) (MilestoneStatus, error) {
	switch st := MilestoneStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case MilestoneNotStarted, MilestoneInProgress, MilestoneCompleted:
		return st, nil
	default:
		return "", apperr.Validation("invalid stored milestone status %q", s)
	}
}

type Milestone struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	SortOrder   int             `json:"sort_order"`
	DueDate     time.Time       `json:"due_date"`
	Budget      float64         `json:"budget"`
	Status      MilestoneStatus `json:"raw_status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DeriveStatus is the status a milestone displays given its raw status and
// its latest submission (nil when there is none).
func DeriveStatus(raw MilestoneStatus, latest *Submission) MilestoneStatus {
	if raw == MilestoneCompleted {
		return MilestoneCompleted
	}
	if latest != nil {
		switch latest.Status {
		case SubmissionQueried:
			return MilestoneQueried
		case SubmissionPendingApproval:
			return MilestonePendingApproval
		case SubmissionApproved:
			return MilestoneCompleted
		}
	}
	return MilestoneInProgress
}
