package registry

import (
	"context"
	"errors"
	"strings"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/rbac"

	"go.uber.org/zap"
)

type SectionInput struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	MilestoneIDs []int64 `json:"milestone_ids"`
}

// CreateSection groups milestones of one project under a named section.
func (s *Service) CreateSection(ctx context.Context, actor model.Actor, projectID int64, in SectionInput) (*model.Section, error) {
	log := logger.WithTrace(ctx, s.logger)

	if err := access.Require(actor, rbac.PermissionManageSections); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("section name is required")
	}
	if err := noDuplicates(in.MilestoneIDs); err != nil {
		return nil, err
	}

	var out *model.Section
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := access.VisibleProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		if err := milestonesBelong(ctx, tx, projectID, in.MilestoneIDs); err != nil {
			return err
		}

		sec := &model.Section{ProjectID: projectID, Name: name, Description: in.Description, CreatedAt: s.now()}
		if err := tx.Sections().Insert(ctx, sec); err != nil {
			return err
		}
		if err := link(ctx, tx, sec.ID, in.MilestoneIDs); err != nil {
			return err
		}
		var err error
		out, err = tx.Sections().Get(ctx, sec.ID)
		return err
	})
	if err != nil {
		log.Warn("CreateSection failed", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, access.StoreErr(err, "project", projectID)
	}

	log.Info("Section created",
		zap.Int64("section_id", out.ID),
		zap.Int64("project_id", projectID),
		zap.Int64s("milestone_ids", out.MilestoneIDs),
	)
	return out, nil
}

// LinkMilestones adds milestones to an existing section. Milestones already
// in this section are skipped.
func (s *Service) LinkMilestones(ctx context.Context, actor model.Actor, sectionID int64, milestoneIDs []int64) (*model.Section, error) {
	if err := access.Require(actor, rbac.PermissionManageSections); err != nil {
		return nil, err
	}
	if err := noDuplicates(milestoneIDs); err != nil {
		return nil, err
	}

	var out *model.Section
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		sec, err := visibleSection(ctx, tx, actor, sectionID)
		if err != nil {
			return err
		}
		if err := milestonesBelong(ctx, tx, sec.ProjectID, milestoneIDs); err != nil {
			return err
		}
		var fresh []int64
		for _, id := range milestoneIDs {
			if !sec.HasMilestone(id) {
				fresh = append(fresh, id)
			}
		}
		if err := link(ctx, tx, sectionID, fresh); err != nil {
			return err
		}
		out, err = tx.Sections().Get(ctx, sectionID)
		return err
	})
	if err != nil {
		return nil, access.StoreErr(err, "section", sectionID)
	}
	return out, nil
}

func noDuplicates(ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperr.Validation("milestone %d is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func milestonesBelong(ctx context.Context, tx store.Repositories, projectID int64, ids []int64) error {
	for _, id := range ids {
		m, err := tx.Milestones().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && m.ProjectID != projectID) {
			return apperr.Validation("milestone %d does not belong to project %d", id, projectID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// link relies on the store's unique constraint for milestones already owned
// by another section.
func link(ctx context.Context, tx store.Repositories, sectionID int64, ids []int64) error {
	for _, id := range ids {
		if err := tx.Sections().LinkMilestone(ctx, sectionID, id); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Conflict("milestone %d is already linked to another section", id)
			}
			return err
		}
	}
	return nil
}

func visibleSection(ctx context.Context, repos store.Repositories, actor model.Actor, sectionID int64) (*model.Section, error) {
	sec, err := repos.Sections().Get(ctx, sectionID)
	if err != nil {
		return nil, access.StoreErr(err, "section", sectionID)
	}
	if _, err := access.VisibleProject(ctx, repos, actor, sec.ProjectID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("section", sectionID)
		}
		return nil, err
	}
	return sec, nil
}

func (s *Service) GetSection(ctx context.Context, actor model.Actor, sectionID int64) (*model.Section, error) {
	return visibleSection(ctx, s.store, actor, sectionID)
}

func (s *Service) ListSections(ctx context.Context, actor model.Actor, projectID int64) ([]model.Section, error) {
	if _, err := access.VisibleProject(ctx, s.store, actor, projectID); err != nil {
		return nil, err
	}
	sections, err := s.store.Sections().ListByProject(ctx, projectID)
	if err != nil {
		return nil, access.StoreErr(err, "project", projectID)
	}
	if sections == nil {
		sections = []model.Section{}
	}
	return sections, nil
}

type AssignmentResult struct {
	Section  *model.Section `json:"section"`
	Changed  bool           `json:"changed"`
	Previous *int64         `json:"previous_contractor_id,omitempty"`
}

// AssignContractor sets the section contractor. Repeating the current
// assignment changes nothing; a different contractor replaces the old one.
// The contractor joins the project pool either way.
func (s *Service) AssignContractor(ctx context.Context, actor model.Actor, sectionID, contractorID int64) (*AssignmentResult, error) {
	log := logger.WithTrace(ctx, s.logger)

	if err := access.Require(actor, rbac.PermissionAssignContractor); err != nil {
		return nil, err
	}

	result := &AssignmentResult{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		sec, err := visibleSection(ctx, tx, actor, sectionID)
		if err != nil {
			return err
		}
		if err := requireActor(ctx, tx, contractorID, model.RoleContractor); err != nil {
			return err
		}
		if sec.ContractorID != nil && *sec.ContractorID == contractorID {
			result.Section = sec
			return nil
		}

		now := s.now()
		previous, err := tx.Sections().Assign(ctx, sectionID, contractorID, now)
		if err != nil {
			return err
		}
		if _, err := tx.Projects().AddContractor(ctx, sec.ProjectID, contractorID, now); err != nil {
			return err
		}
		result.Changed = true
		result.Previous = previous
		result.Section, err = tx.Sections().Get(ctx, sectionID)
		return err
	})
	if err != nil {
		return nil, access.StoreErr(err, "section", sectionID)
	}

	if result.Changed {
		fields := []zap.Field{
			zap.Int64("section_id", sectionID),
			zap.Int64("contractor_id", contractorID),
		}
		if result.Previous != nil {
			fields = append(fields, zap.Int64("previous_contractor_id", *result.Previous))
			log.Info("Section contractor replaced", fields...)
		} else {
			log.Info("Section contractor assigned", fields...)
		}
	}
	return result, nil
}

func (s *Service) AssignConsultant(ctx context.Context, actor model.Actor, projectID, consultantID int64) (*model.Project, error) {
	if err := access.Require(actor, rbac.PermissionAssignConsultant); err != nil {
		return nil, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Projects().Get(ctx, projectID); err != nil {
			return err
		}
		if err := requireActor(ctx, tx, consultantID, model.RoleConsultant); err != nil {
			return err
		}
		return tx.Projects().SetConsultant(ctx, projectID, consultantID)
	})
	if err != nil {
		return nil, access.StoreErr(err, "project", projectID)
	}
	logger.WithTrace(ctx, s.logger).Info("Project consultant assigned",
		zap.Int64("project_id", projectID),
		zap.Int64("consultant_id", consultantID),
	)
	return s.store.Projects().Get(ctx, projectID)
}

// AddProjectContractor puts a contractor in the project pool. It reports
// whether the contractor was new to the pool.
func (s *Service) AddProjectContractor(ctx context.Context, actor model.Actor, projectID, contractorID int64) (bool, error) {
	if err := access.Require(actor, rbac.PermissionManageContractors); err != nil {
		return false, err
	}
	var added bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := access.VisibleProject(ctx, tx, actor, projectID); err != nil {
			return err
		}
		if err := requireActor(ctx, tx, contractorID, model.RoleContractor); err != nil {
			return err
		}
		var err error
		added, err = tx.Projects().AddContractor(ctx, projectID, contractorID, s.now())
		return err
	})
	if err != nil {
		return false, access.StoreErr(err, "project", projectID)
	}
	return added, nil
}

// GetProjectContractors returns the pool in insertion order.
func (s *Service) GetProjectContractors(ctx context.Context, actor model.Actor, projectID int64) ([]model.ProjectContractor, error) {
	if _, err := access.VisibleProject(ctx, s.store, actor, projectID); err != nil {
		return nil, err
	}
	pool, err := s.store.Projects().ListContractors(ctx, projectID)
	if err != nil {
		return nil, access.StoreErr(err, "project", projectID)
	}
	if pool == nil {
		pool = []model.ProjectContractor{}
	}
	return pool, nil
}
