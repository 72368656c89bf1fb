package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

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

type EvidenceFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

type MaterialInput struct {
	Name     string  `json:"material_name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

type SubmissionInput struct {
	MilestoneID     int64
	WorkDescription string
	Evidence        []EvidenceFile
	Materials       []MaterialInput
	// IdempotencyKey makes a retried call return the first submission.
	IdempotencyKey string
}

type SubmissionResult struct {
	Submission *model.Submission
	// Replayed is set when an earlier submission with the same key was
	// returned instead of a new one.
	Replayed bool
}

func (s *Service) validate(in SubmissionInput) error {
	if strings.TrimSpace(in.WorkDescription) == "" {
		return apperr.Validation("work description is required")
	}
	if len(in.Evidence) > s.cfg.MaxEvidenceFiles {
		return apperr.Validation("at most %d evidence files per submission", s.cfg.MaxEvidenceFiles)
	}
	for i, f := range in.Evidence {
		if strings.TrimSpace(f.FileName) == "" {
			return apperr.Validation("evidence %d: file name is required", i+1)
		}
		if len(f.Data) == 0 {
			return apperr.Validation("evidence %q is empty", f.FileName)
		}
		if int64(len(f.Data)) > s.cfg.MaxEvidenceBytes {
			return apperr.Validation("evidence %q exceeds %d bytes", f.FileName, s.cfg.MaxEvidenceBytes)
		}
	}
	for i, m := range in.Materials {
		if strings.TrimSpace(m.Name) == "" {
			return apperr.Validation("material %d: name is required", i+1)
		}
		if m.Quantity <= 0 {
			return apperr.Validation("material %q: quantity must be positive", m.Name)
		}
		if strings.TrimSpace(m.Unit) == "" {
			return apperr.Validation("material %q: unit is required", m.Name)
		}
	}
	return nil
}

// acceptsSubmission refuses a new submission while one awaits review or
// after the milestone is completed.
func acceptsSubmission(m *model.Milestone, latest *model.Submission) error {
	if m.Status == model.MilestoneCompleted {
		return apperr.Conflict("milestone %d is already completed", m.ID)
	}
	if latest != nil && latest.Status == model.SubmissionPendingApproval {
		return apperr.Conflict("submission %d of milestone %d is still awaiting review", latest.ID, m.ID)
	}
	return nil
}

func (s *Service) CreateSubmission(ctx context.Context, actor model.Actor, in SubmissionInput) (*SubmissionResult, error) {
	res, err := s.createSubmission(ctx, actor, in)
	if err != nil {
		rejected("submit", err)
	}
	return res, err
}

func (s *Service) createSubmission(ctx context.Context, actor model.Actor, in SubmissionInput) (*SubmissionResult, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("milestone_id", in.MilestoneID),
		zap.Int64("contractor_id", actor.ID),
	)
	log.Debug("CreateSubmission", zap.Int("evidence_count", len(in.Evidence)))

	if err := access.Require(actor, rbac.PermissionCreateSubmission); err != nil {
		return nil, err
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	m, err := s.store.Milestones().Get(ctx, in.MilestoneID)
	if err != nil {
		return nil, access.StoreErr(err, "milestone", in.MilestoneID)
	}
	if _, err := visibleMilestone(ctx, s.store, actor, m); err != nil {
		return nil, err
	}
	if err := access.AssignedToMilestone(ctx, s.store, actor, m); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if res, err := s.replay(ctx, actor, key, in.MilestoneID); res != nil || err != nil {
			return res, err
		}
	}

	latest, err := latestOf(ctx, s.store, m.ID)
	if err != nil {
		return nil, access.StoreErr(err, "milestone", m.ID)
	}
	if err := acceptsSubmission(m, latest); err != nil {
		return nil, err
	}

	evidence, uploaded, err := s.upload(ctx, m, in.Evidence)
	if err != nil {
		log.Error("Evidence upload failed", zap.Error(err))
		return nil, err
	}

	now := s.now()
	sub := &model.Submission{
		MilestoneID:     m.ID,
		ContractorID:    actor.ID,
		Status:          model.SubmissionPendingApproval,
		WorkDescription: strings.TrimSpace(in.WorkDescription),
		SubmittedAt:     now,
		Evidence:        evidence,
		Materials:       materials(in.Materials, now),
	}
	if key != "" {
		sub.IdempotencyKey = &key
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		locked, err := tx.Milestones().GetForUpdate(ctx, m.ID)
		if err != nil {
			return err
		}
		latest, err := latestOf(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if err := acceptsSubmission(locked, latest); err != nil {
			return err
		}
		if err := tx.Submissions().Insert(ctx, sub); err != nil {
			return err
		}
		p, err := tx.Projects().Get(ctx, m.ProjectID)
		if err != nil {
			return err
		}
		return tx.Outbox().Enqueue(ctx, "submission", sub.ID, contracts.RoutingKeySubmissionCreated,
			contracts.SubmissionCreatedPayload{
				EventMeta:     contracts.NewEventMeta(contracts.RoutingKeySubmissionCreated, trace.FromContext(ctx), now),
				SubmissionID:  sub.ID,
				MilestoneID:   m.ID,
				ProjectID:     m.ProjectID,
				ContractorID:  actor.ID,
				EvidenceCount: len(sub.Evidence),
				MaterialCount: len(sub.Materials),
				RecipientIDs:  []int64{reviewerOf(p)},
			})
	})
	if err != nil {
		// a concurrent call with the same key won the insert
		if key != "" && errors.Is(err, store.ErrConflict) {
			if res, rerr := s.replay(ctx, actor, key, in.MilestoneID); res != nil {
				return res, nil
			} else if rerr != nil {
				return nil, rerr
			}
		}
		log.Warn("Submission not written; uploaded evidence is orphaned",
			zap.Strings("paths", uploaded),
			zap.Error(err),
		)
		return nil, access.StoreErr(err, "milestone", m.ID)
	}

	metrics.IncrementWorkflowTransition("submitted")
	metrics.AddEvidenceBytes(evidenceBytes(in.Evidence))
	log.Info("Submission created",
		zap.Int64("submission_id", sub.ID),
		zap.Int("evidence_count", len(sub.Evidence)),
		zap.Int("material_count", len(sub.Materials)),
	)

	if err := s.signEvidence(ctx, sub); err != nil {
		log.Warn("Evidence URLs unavailable", zap.Int64("submission_id", sub.ID), zap.Error(err))
	}
	return &SubmissionResult{Submission: sub}, nil
}

// replay returns the submission already recorded under key, or nil when
// there is none.
func (s *Service) replay(ctx context.Context, actor model.Actor, key string, milestoneID int64) (*SubmissionResult, error) {
	prior, err := s.store.Submissions().FindByIdempotencyKey(ctx, actor.ID, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, access.StoreErr(err, "submission", 0)
	}
	if prior.MilestoneID != milestoneID {
		return nil, apperr.Conflict("idempotency key %q was used for milestone %d", key, prior.MilestoneID)
	}
	if err := s.signEvidence(ctx, prior); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Submission replayed",
		zap.Int64("submission_id", prior.ID),
		zap.String("idempotency_key", key),
	)
	return &SubmissionResult{Submission: prior, Replayed: true}, nil
}

// upload stores every file before anything is written; one failure fails
// the whole submission.
func (s *Service) upload(ctx context.Context, m *model.Milestone, files []EvidenceFile) ([]model.Evidence, []string, error) {
	scope := fmt.Sprintf("projects/%d/milestones/%d", m.ProjectID, m.ID)
	evidence := make([]model.Evidence, 0, len(files))
	paths := make([]string, 0, len(files))
	now := s.now()
	for _, f := range files {
		p, err := s.blobs.Put(ctx, scope, f.FileName, f.Data)
		if err != nil {
			return nil, paths, apperr.Dependency(err, "upload evidence %q", f.FileName)
		}
		paths = append(paths, p)
		fileType := f.ContentType
		if fileType == "" {
			fileType = http.DetectContentType(f.Data)
		}
		evidence = append(evidence, model.Evidence{
			FilePath:  p,
			FileName:  f.FileName,
			FileType:  fileType,
			FileSize:  int64(len(f.Data)),
			CreatedAt: now,
		})
	}
	return evidence, paths, nil
}

func materials(in []MaterialInput, now time.Time) []model.MaterialUsage {
	out := make([]model.MaterialUsage, 0, len(in))
	for _, m := range in {
		out = append(out, model.MaterialUsage{
			MaterialName: strings.TrimSpace(m.Name),
			Quantity:     m.Quantity,
			Unit:         strings.TrimSpace(m.Unit),
			CreatedAt:    now,
		})
	}
	return out
}

func evidenceBytes(files []EvidenceFile) int64 {
	var n int64
	for _, f := range files {
		n += int64(len(f.Data))
	}
	return n
}

// reviewerOf is who gets told about a new submission: the assigned
// consultant, else the project creator.
func reviewerOf(p *model.Project) int64 {
	if p.ConsultantID != nil {
		return *p.ConsultantID
	}
	return p.CreatedBy
}
