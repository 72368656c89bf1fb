package workflow

import (
	"context"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/util"
)

func (s *Service) GetSubmission(ctx context.Context, actor model.Actor, submissionID int64) (*model.Submission, error) {
	sub, err := util.Retry(ctx, s.retry, func(ctx context.Context) (*model.Submission, error) {
		sub, err := s.store.Submissions().Get(ctx, submissionID)
		if err != nil {
			return nil, access.StoreErr(err, "submission", submissionID)
		}
		m, err := s.store.Milestones().Get(ctx, sub.MilestoneID)
		if err != nil {
			return nil, access.StoreErr(err, "milestone", sub.MilestoneID)
		}
		if _, err := access.VisibleProject(ctx, s.store, actor, m.ProjectID); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.NotFound("submission", submissionID)
			}
			return nil, err
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.signEvidence(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListMilestoneSubmissions returns the history of one milestone, oldest
// first. Queried rows stay in place next to their resubmissions.
func (s *Service) ListMilestoneSubmissions(ctx context.Context, actor model.Actor, milestoneID int64) ([]model.Submission, error) {
	subs, err := util.Retry(ctx, s.retry, func(ctx context.Context) ([]model.Submission, error) {
		m, err := s.store.Milestones().Get(ctx, milestoneID)
		if err != nil {
			return nil, access.StoreErr(err, "milestone", milestoneID)
		}
		if _, err := visibleMilestone(ctx, s.store, actor, m); err != nil {
			return nil, err
		}
		subs, err := s.store.Submissions().ListByMilestone(ctx, milestoneID)
		if err != nil {
			return nil, access.StoreErr(err, "milestone", milestoneID)
		}
		return subs, nil
	})
	if err != nil {
		return nil, err
	}
	return s.signAll(ctx, subs)
}

// ListProjectSubmissions is the review queue of a project, optionally
// narrowed to one status.
func (s *Service) ListProjectSubmissions(ctx context.Context, actor model.Actor, projectID int64, status string) ([]model.Submission, error) {
	var filter *model.SubmissionStatus
	if status != "" {
		st, err := model.ParseSubmissionStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &st
	}

	subs, err := util.Retry(ctx, s.retry, func(ctx context.Context) ([]model.Submission, error) {
		if _, err := access.VisibleProject(ctx, s.store, actor, projectID); err != nil {
			return nil, err
		}
		subs, err := s.store.Submissions().ListByProject(ctx, projectID, filter)
		if err != nil {
			return nil, access.StoreErr(err, "project", projectID)
		}
		return subs, nil
	})
	if err != nil {
		return nil, err
	}
	return s.signAll(ctx, subs)
}

func (s *Service) signAll(ctx context.Context, subs []model.Submission) ([]model.Submission, error) {
	if subs == nil {
		return []model.Submission{}, nil
	}
	for i := range subs {
		if err := s.signEvidence(ctx, &subs[i]); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
