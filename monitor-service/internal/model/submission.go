package model

import (
	"strings"
	"time"

	"projectmonitor/pkg/apperr"
)

type SubmissionStatus string

const (
	SubmissionPendingApproval SubmissionStatus = "PENDING_APPROVAL"
	SubmissionApproved        SubmissionStatus = "APPROVED"
	SubmissionQueried         SubmissionStatus = "QUERIED"
	SubmissionRejected        SubmissionStatus = "REJECTED"
)

func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch st := SubmissionStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case SubmissionPendingApproval, SubmissionApproved, SubmissionQueried, SubmissionRejected:
		return st, nil
	default:
		return "", apperr.Validation("unknown submission status %q", s)
	}
}

type Submission struct {
	ID              int64            `json:"id"`
	MilestoneID     int64            `json:"milestone_id"`
	ContractorID    int64            `json:"contractor_id"`
	Status          SubmissionStatus `json:"status"`
	WorkDescription string           `json:"work_description"`
	QueryNote       *string          `json:"query_note,omitempty"`
	IdempotencyKey  *string          `json:"-"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy      *int64           `json:"reviewed_by,omitempty"`
	Evidence        []Evidence       `json:"evidence"`
	Materials       []MaterialUsage  `json:"materials"`
}

// After reports whether s sorts after other: later submitted_at, then
// higher id.
func (s Submission) After(other Submission) bool {
	if !s.SubmittedAt.Equal(other.SubmittedAt) {
		return s.SubmittedAt.After(other.SubmittedAt)
	}
	return s.ID > other.ID
}

// Latest picks the most recent submission, or nil for an empty slice.
func Latest(subs []Submission) *Submission {
	var latest *Submission
	for i := range subs {
		if latest == nil || subs[i].After(*latest) {
			latest = &subs[i]
		}
	}
	return latest
}

// Evidence is immutable once written. URL is signed per read and never
// stored.
type Evidence struct {
	ID           int64     `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	FilePath     string    `json:"-"`
	FileName     string    `json:"file_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
	URL          string    `json:"url,omitempty"`
}

type MaterialUsage struct {
	ID           int64     `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	MaterialName string    `json:"material_name"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	CreatedAt    time.Time `json:"created_at"`
}
