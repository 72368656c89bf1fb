package progress

import (
	"math"

	"projectmonitor/monitor-service/internal/model"
)

// Policy scores one milestone between 0 and 100.
type Policy interface {
	Staged(raw, derived model.MilestoneStatus) float64
}

// StaircasePolicy is the default scoring: work started counts half, work
// awaiting approval three quarters.
type StaircasePolicy struct{}

func (StaircasePolicy) Staged(raw, derived model.MilestoneStatus) float64 {
	switch derived {
	case model.MilestoneCompleted:
		return 100
	case model.MilestonePendingApproval:
		return 75
	case model.MilestoneQueried:
		return 50
	}
	if raw == model.MilestoneInProgress {
		return 50
	}
	return 0
}

// SectionStatus folds milestone statuses: QUERIED beats PENDING_APPROVAL,
// COMPLETED needs every milestone completed, anything else is IN_PROGRESS.
func SectionStatus(statuses []model.MilestoneStatus) model.MilestoneStatus {
	if len(statuses) == 0 {
		return model.MilestoneInProgress
	}
	var pending, completed int
	for _, st := range statuses {
		switch st {
		case model.MilestoneQueried:
			return model.MilestoneQueried
		case model.MilestonePendingApproval:
			pending++
		case model.MilestoneCompleted:
			completed++
		}
	}
	switch {
	case pending > 0:
		return model.MilestonePendingApproval
	case completed == len(statuses):
		return model.MilestoneCompleted
	default:
		return model.MilestoneInProgress
	}
}

// Percent is the rounded share of completed milestones, 0 when empty.
func Percent(statuses []model.MilestoneStatus) int {
	if len(statuses) == 0 {
		return 0
	}
	var completed int
	for _, st := range statuses {
		if st == model.MilestoneCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(statuses))))
}

// StagedPercent is the rounded mean of staged scores, 0 when empty.
func StagedPercent(scores []float64) int {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(sum / float64(len(scores))))
}
