// Package comments is the append-only discussion log of a project.
package comments

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/rbac"
	"projectmonitor/pkg/trace"
	"projectmonitor/pkg/util"

	contracts "projectmonitor/contracts/mq"

	"go.uber.org/zap"
)

const (
	MaxBodyLength = 4000
	excerptLength = 140
)

type Service struct {
	store  store.Store
	retry  util.RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, retry: util.DefaultRetryPolicy(), logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) AddComment(ctx context.Context, actor model.Actor, projectID int64, body string) (*model.Comment, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("project_id", projectID),
		zap.Int64("author_id", actor.ID),
	)
	log.Debug("AddComment")

	if err := access.Require(actor, rbac.PermissionComment); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("comment body is required")
	}
	if n := utf8.RuneCountInString(body); n > MaxBodyLength {
		return nil, apperr.Validation("comment is %d characters, the limit is %d", n, MaxBodyLength)
	}

	c := &model.Comment{ProjectID: projectID, AuthorID: actor.ID, Body: body, CreatedAt: s.now()}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		p, err := access.VisibleProject(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		if err := tx.Comments().Insert(ctx, c); err != nil {
			return err
		}
		recipients, err := audience(ctx, tx, p, actor.ID)
		if err != nil {
			return err
		}
		return tx.Outbox().Enqueue(ctx, "comment", c.ID, contracts.RoutingKeyCommentAdded,
			contracts.CommentAddedPayload{
				EventMeta:    contracts.NewEventMeta(contracts.RoutingKeyCommentAdded, trace.FromContext(ctx), c.CreatedAt),
				CommentID:    c.ID,
				ProjectID:    projectID,
				AuthorID:     actor.ID,
				Excerpt:      excerpt(body),
				RecipientIDs: recipients,
			})
	})
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			log.Error("AddComment failed", zap.Error(err))
		}
		return nil, access.StoreErr(err, "project", projectID)
	}

	c.Author = &model.CommentAuthor{FullName: actor.FullName, Role: actor.Role}
	log.Info("Comment added", zap.Int64("comment_id", c.ID))
	return c, nil
}

// audience is everyone on the project except the author: creator,
// consultant and the contractor pool.
func audience(ctx context.Context, repos store.Repositories, p *model.Project, authorID int64) ([]int64, error) {
	ids := []int64{p.CreatedBy}
	if p.ConsultantID != nil {
		ids = append(ids, *p.ConsultantID)
	}
	pool, err := repos.Projects().ListContractors(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, pc := range pool {
		ids = append(ids, pc.ContractorID)
	}

	seen := map[int64]bool{authorID: true}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func excerpt(body string) string {
	if utf8.RuneCountInString(body) <= excerptLength {
		return body
	}
	r := []rune(body)
	return string(r[:excerptLength]) + "…"
}

// ListComments returns the log newest first. When author details cannot be
// joined the comments are still returned, without authors.
func (s *Service) ListComments(ctx context.Context, actor model.Actor, projectID int64) ([]model.Comment, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("project_id", projectID))

	if _, err := access.VisibleProject(ctx, s.store, actor, projectID); err != nil {
		return nil, err
	}

	comments, err := s.store.Comments().ListWithAuthors(ctx, projectID)
	if err == nil {
		return comments, nil
	}
	log.Warn("Comment author join failed, listing without authors", zap.Error(err))

	comments, err = util.Retry(ctx, s.retry, func(ctx context.Context) ([]model.Comment, error) {
		return s.store.Comments().List(ctx, projectID)
	})
	if err != nil {
		log.Error("ListComments failed", zap.Error(err))
		return nil, access.StoreErr(err, "project", projectID)
	}
	return comments, nil
}
