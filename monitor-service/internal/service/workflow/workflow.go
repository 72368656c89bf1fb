// Package workflow drives a milestone through submit, approve and query.
// Each transition commits together with its outbox event.
package workflow

import (
	"context"
	"errors"
	"time"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/blobstore"
	"projectmonitor/pkg/metrics"
	"projectmonitor/pkg/util"

	"go.uber.org/zap"
)

type Service struct {
	store  store.Store
	blobs  blobstore.Store
	cfg    Config
	retry  util.RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, blobs blobstore.Store, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		blobs:  blobs,
		cfg:    cfg.withDefaults(),
		retry:  util.DefaultRetryPolicy(),
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithRetry(p util.RetryPolicy) *Service {
	s.retry = p
	return s
}

// rejected counts a refused transition by error kind.
func rejected(operation string, err error) {
	kind := string(apperr.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	metrics.IncrementWorkflowRejection(operation, kind)
}

// visibleMilestone hides milestones of projects the actor cannot see.
func visibleMilestone(ctx context.Context, repos store.Repositories, actor model.Actor, m *model.Milestone) (*model.Project, error) {
	p, err := access.VisibleProject(ctx, repos, actor, m.ProjectID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("milestone", m.ID)
		}
		return nil, err
	}
	return p, nil
}

// signEvidence fills the transient URL of every evidence item.
func (s *Service) signEvidence(ctx context.Context, subs ...*model.Submission) error {
	for _, sub := range subs {
		for i := range sub.Evidence {
			url, err := s.blobs.Sign(ctx, sub.Evidence[i].FilePath, s.cfg.URLTTL)
			if err != nil {
				return apperr.Dependency(err, "sign evidence %d", sub.Evidence[i].ID)
			}
			sub.Evidence[i].URL = url
		}
	}
	return nil
}

// latestOf is nil when the milestone has no submission yet.
func latestOf(ctx context.Context, repos store.Repositories, milestoneID int64) (*model.Submission, error) {
	latest, err := repos.Submissions().Latest(ctx, milestoneID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return latest, err
}
