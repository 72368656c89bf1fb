package model

import "time"

type Section struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	MilestoneIDs []int64   `json:"milestone_ids"`
	ContractorID *int64    `json:"contractor_id,omitempty"`
}

func (s Section) HasMilestone(id int64) bool {
	for _, m := range s.MilestoneIDs {
		if m == id {
			return true
		}
	}
	return false
}

type SectionAssignment struct {
	SectionID    int64     `json:"section_id"`
	ContractorID int64     `json:"contractor_id"`
	AssignedAt   time.Time `json:"assigned_at"`
}
