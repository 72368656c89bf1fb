// Package progress derives milestone, section and project progress from the
// latest submissions. Nothing is cached; every report reads the store.
package progress

import (
	"context"
	"errors"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/util"

	"go.uber.org/zap"
)

type MilestoneProgress struct {
	Milestone model.Milestone       `json:"milestone"`
	Status    model.MilestoneStatus `json:"status"`
	Staged    float64               `json:"staged_progress"`
	// LatestSubmissionID is nil before the first submission.
	LatestSubmissionID *int64 `json:"latest_submission_id,omitempty"`
}

type SectionReport struct {
	Section       model.Section         `json:"section"`
	Status        model.MilestoneStatus `json:"status"`
	Percent       int                   `json:"percent"`
	StagedPercent int                   `json:"staged_percent"`
	Milestones    []MilestoneProgress   `json:"milestones"`
}

type ProjectReport struct {
	Project       model.Project       `json:"project"`
	Percent       int                 `json:"percent"`
	StagedPercent int                 `json:"staged_percent"`
	Sections      []SectionReport     `json:"sections"`
	Unassigned    []MilestoneProgress `json:"unassigned"`
}

type Service struct {
	store  store.Store
	policy Policy
	retry  util.RetryPolicy
	logger *zap.Logger
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		policy: StaircasePolicy{},
		retry:  util.DefaultRetryPolicy(),
		logger: logger,
	}
}

func (s *Service) WithPolicy(p Policy) *Service {
	s.policy = p
	return s
}

func (s *Service) WithRetry(p util.RetryPolicy) *Service {
	s.retry = p
	return s
}

func (s *Service) score(m model.Milestone, latest *model.Submission) MilestoneProgress {
	derived := model.DeriveStatus(m.Status, latest)
	mp := MilestoneProgress{
		Milestone: m,
		Status:    derived,
		Staged:    s.policy.Staged(m.Status, derived),
	}
	if latest != nil {
		id := latest.ID
		mp.LatestSubmissionID = &id
	}
	return mp
}

func summarize(items []MilestoneProgress) (model.MilestoneStatus, int, int) {
	statuses := make([]model.MilestoneStatus, len(items))
	scores := make([]float64, len(items))
	for i, it := range items {
		statuses[i] = it.Status
		scores[i] = it.Staged
	}
	return SectionStatus(statuses), Percent(statuses), StagedPercent(scores)
}

// snapshot is everything a project report is computed from.
type snapshot struct {
	project    *model.Project
	milestones []model.Milestone
	sections   []model.Section
	latest     map[int64]model.Submission
}

func (s *Service) load(ctx context.Context, actor model.Actor, projectID int64) (*snapshot, error) {
	return util.Retry(ctx, s.retry, func(ctx context.Context) (*snapshot, error) {
		p, err := access.VisibleProject(ctx, s.store, actor, projectID)
		if err != nil {
			return nil, err
		}
		snap := &snapshot{project: p}
		if snap.milestones, err = s.store.Milestones().ListByProject(ctx, projectID); err != nil {
			return nil, access.StoreErr(err, "project", projectID)
		}
		if snap.sections, err = s.store.Sections().ListByProject(ctx, projectID); err != nil {
			return nil, access.StoreErr(err, "project", projectID)
		}
		if snap.latest, err = s.store.Submissions().LatestByProject(ctx, projectID); err != nil {
			return nil, access.StoreErr(err, "project", projectID)
		}
		return snap, nil
	})
}

func (snap *snapshot) latestOf(milestoneID int64) *model.Submission {
	if sub, ok := snap.latest[milestoneID]; ok {
		return &sub
	}
	return nil
}

func (s *Service) build(snap *snapshot) *ProjectReport {
	scored := make(map[int64]MilestoneProgress, len(snap.milestones))
	all := make([]MilestoneProgress, 0, len(snap.milestones))
	for _, m := range snap.milestones {
		mp := s.score(m, snap.latestOf(m.ID))
		scored[m.ID] = mp
		all = append(all, mp)
	}

	report := &ProjectReport{
		Project:    *snap.project,
		Sections:   make([]SectionReport, 0, len(snap.sections)),
		Unassigned: []MilestoneProgress{},
	}
	_, report.Percent, report.StagedPercent = summarize(all)

	mapped := make(map[int64]bool)
	for _, sec := range snap.sections {
		sr := SectionReport{Section: sec, Milestones: []MilestoneProgress{}}
		for _, m := range snap.milestones {
			if sec.HasMilestone(m.ID) {
				sr.Milestones = append(sr.Milestones, scored[m.ID])
				mapped[m.ID] = true
			}
		}
		sr.Status, sr.Percent, sr.StagedPercent = summarize(sr.Milestones)
		report.Sections = append(report.Sections, sr)
	}
	for _, mp := range all {
		if !mapped[mp.Milestone.ID] {
			report.Unassigned = append(report.Unassigned, mp)
		}
	}
	return report
}

// ProjectReport covers every milestone of the project, mapped or not.
func (s *Service) ProjectReport(ctx context.Context, actor model.Actor, projectID int64) (*ProjectReport, error) {
	log := logger.WithTrace(ctx, s.logger)
	log.Debug("ProjectReport", zap.Int64("project_id", projectID), zap.Int64("actor_id", actor.ID))

	snap, err := s.load(ctx, actor, projectID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			log.Error("ProjectReport failed", zap.Int64("project_id", projectID), zap.Error(err))
		}
		return nil, err
	}
	return s.build(snap), nil
}

func (s *Service) SectionReport(ctx context.Context, actor model.Actor, sectionID int64) (*SectionReport, error) {
	sec, err := s.store.Sections().Get(ctx, sectionID)
	if err != nil {
		return nil, access.StoreErr(err, "section", sectionID)
	}
	report, err := s.ProjectReport(ctx, actor, sec.ProjectID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("section", sectionID)
		}
		return nil, err
	}
	for i := range report.Sections {
		if report.Sections[i].Section.ID == sectionID {
			return &report.Sections[i], nil
		}
	}
	return nil, apperr.NotFound("section", sectionID)
}

func (s *Service) MilestoneReport(ctx context.Context, actor model.Actor, milestoneID int64) (*MilestoneProgress, error) {
	m, err := s.store.Milestones().Get(ctx, milestoneID)
	if err != nil {
		return nil, access.StoreErr(err, "milestone", milestoneID)
	}
	if _, err := access.VisibleProject(ctx, s.store, actor, m.ProjectID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("milestone", milestoneID)
		}
		return nil, err
	}

	latest, err := util.Retry(ctx, s.retry, func(ctx context.Context) (*model.Submission, error) {
		sub, err := s.store.Submissions().Latest(ctx, milestoneID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, access.StoreErr(err, "milestone", milestoneID)
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	mp := s.score(*m, latest)
	return &mp, nil
}

