package workflow

import (
	"context"
	"slices"
	"strings"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/metrics"
	"projectmonitor/pkg/rbac"
	"projectmonitor/pkg/trace"

	contracts "projectmonitor/contracts/mq"

	"go.uber.org/zap"
)

type decision struct {
	operation  string
	from       []model.SubmissionStatus
	to         model.SubmissionStatus
	routingKey string
	note       *string
}

func (s *Service) ApproveSubmission(ctx context.Context, actor model.Actor, submissionID int64) (*model.Submission, error) {
	from := []model.SubmissionStatus{model.SubmissionPendingApproval}
	if s.cfg.AllowApproveQueried {
		from = append(from, model.SubmissionQueried)
	}
	return s.review(ctx, actor, submissionID, decision{
		operation:  "approve",
		from:       from,
		to:         model.SubmissionApproved,
		routingKey: contracts.RoutingKeySubmissionApproved,
	})
}

// QuerySubmission sends a pending submission back to the contractor with a
// note. The contractor answers with a new submission.
func (s *Service) QuerySubmission(ctx context.Context, actor model.Actor, submissionID int64, note string) (*model.Submission, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		err := apperr.Validation("query note is required")
		rejected("query", err)
		return nil, err
	}
	return s.review(ctx, actor, submissionID, decision{
		operation:  "query",
		from:       []model.SubmissionStatus{model.SubmissionPendingApproval},
		to:         model.SubmissionQueried,
		routingKey: contracts.RoutingKeySubmissionQueried,
		note:       &note,
	})
}

func (s *Service) review(ctx context.Context, actor model.Actor, submissionID int64, d decision) (*model.Submission, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("submission_id", submissionID),
		zap.Int64("reviewer_id", actor.ID),
		zap.String("operation", d.operation),
	)
	log.Debug("ReviewSubmission")

	sub, err := s.decide(ctx, actor, submissionID, d)
	if err != nil {
		rejected(d.operation, err)
		if apperr.Is(err, apperr.KindConflict) {
			log.Warn("Review refused", zap.Error(err))
		} else {
			log.Error("Review failed", zap.Error(err))
		}
		return nil, err
	}

	metrics.IncrementWorkflowTransition(strings.ToLower(string(d.to)))
	log.Info("Submission reviewed",
		zap.Int64("milestone_id", sub.MilestoneID),
		zap.String("status", string(sub.Status)),
	)
	if err := s.signEvidence(ctx, sub); err != nil {
		log.Warn("Evidence URLs unavailable", zap.Error(err))
	}
	return sub, nil
}

func (s *Service) decide(ctx context.Context, actor model.Actor, submissionID int64, d decision) (*model.Submission, error) {
	if err := access.Require(actor, rbac.PermissionReviewSubmission); err != nil {
		return nil, err
	}

	var out *model.Submission
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		sub, err := tx.Submissions().Get(ctx, submissionID)
		if err != nil {
			return access.StoreErr(err, "submission", submissionID)
		}
		m, err := tx.Milestones().GetForUpdate(ctx, sub.MilestoneID)
		if err != nil {
			return err
		}
		p, err := access.VisibleProject(ctx, tx, actor, m.ProjectID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.NotFound("submission", submissionID)
			}
			return err
		}
		if !access.InCharge(actor, p) {
			return apperr.Authorization("consultant %d does not oversee project %d", actor.ID, p.ID)
		}

		latest, err := latestOf(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != sub.ID {
			return apperr.Conflict("submission %d is not the latest of milestone %d", sub.ID, m.ID)
		}
		if !slices.Contains(d.from, sub.Status) {
			return apperr.Conflict("submission %d is %s", sub.ID, sub.Status)
		}

		now := s.now()
		err = tx.Submissions().Review(ctx, store.Review{
			SubmissionID: sub.ID,
			From:         d.from,
			To:           d.to,
			ReviewerID:   actor.ID,
			QueryNote:    d.note,
			At:           now,
		})
		if err != nil {
			return err
		}
		if d.to == model.SubmissionApproved {
			if err := tx.Milestones().UpdateStatus(ctx, m.ID, model.MilestoneCompleted); err != nil {
				return err
			}
		}

		payload := contracts.SubmissionReviewedPayload{
			EventMeta:    contracts.NewEventMeta(d.routingKey, trace.FromContext(ctx), now),
			SubmissionID: sub.ID,
			MilestoneID:  m.ID,
			ProjectID:    m.ProjectID,
			ReviewerID:   actor.ID,
			Status:       string(d.to),
			RecipientIDs: []int64{sub.ContractorID},
		}
		if d.note != nil {
			payload.QueryNote = *d.note
		}
		if err := tx.Outbox().Enqueue(ctx, "submission", sub.ID, d.routingKey, payload); err != nil {
			return err
		}

		out, err = tx.Submissions().Get(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, access.StoreErr(err, "submission", submissionID)
	}
	return out, nil
}
