package model

import (
	"strings"
	"time"

	"projectmonitor/pkg/apperr"
)

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "DRAFT"
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectSuspended ProjectStatus = "SUSPENDED"
)

func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch st := ProjectStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case ProjectDraft, ProjectActive, ProjectCompleted, ProjectSuspended:
		return st, nil
	default:
		return "", apperr.Validation("unknown project status %q", s)
	}
}

type Project struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Location     string        `json:"location"`
	TotalBudget  float64       `json:"total_budget"`
	Currency     string        `json:"currency"`
	Status       ProjectStatus `json:"status"`
	ConsultantID *int64        `json:"consultant_id,omitempty"`
	CreatedBy    int64         `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ProjectContractor is one entry of a project's contractor pool.
type ProjectContractor struct {
	ProjectID    int64     `json:"project_id"`
	ContractorID int64     `json:"contractor_id"`
	AddedAt      time.Time `json:"added_at"`
}
