package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"projectmonitor/monitor-service/internal/access"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/rbac"
	"projectmonitor/pkg/trace"

	contracts "projectmonitor/contracts/mq"

	"go.uber.org/zap"
)

const defaultCurrency = "NGN"

type Service struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type MilestoneInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Budget      float64   `json:"budget"`
	DueDate     time.Time `json:"due_date"`
	SortOrder   *int      `json:"sort_order,omitempty"`
}

type CreateProjectInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Location    string           `json:"location"`
	TotalBudget float64          `json:"total_budget"`
	Currency    string           `json:"currency"`
	Milestones  []MilestoneInput `json:"milestones"`
}

type ProjectResult struct {
	Project    *model.Project    `json:"project"`
	Milestones []model.Milestone `json:"milestones"`
	Warnings   []string          `json:"warnings,omitempty"`
}

func validateMilestone(i int, m MilestoneInput) error {
	if strings.TrimSpace(m.Title) == "" {
		return apperr.Validation("milestone %d: title is required", i+1)
	}
	if m.DueDate.IsZero() {
		return apperr.Validation("milestone %d: due date is required", i+1)
	}
	if m.Budget < 0 {
		return apperr.Validation("milestone %d: budget must not be negative", i+1)
	}
	return nil
}

// budgetWarning reports milestone budgets above the project total. The
// overrun is allowed.
func budgetWarning(total float64, budgets ...float64) string {
	var sum float64
	for _, b := range budgets {
		sum += b
	}
	if sum > total {
		return fmt.Sprintf("milestone budgets total %.2f, above the project budget of %.2f", sum, total)
	}
	return ""
}

func (s *Service) CreateProject(ctx context.Context, actor model.Actor, in CreateProjectInput) (*ProjectResult, error) {
	log := logger.WithTrace(ctx, s.logger)
	log.Debug("CreateProject", zap.Int64("actor_id", actor.ID), zap.String("title", in.Title))

	if err := access.Require(actor, rbac.PermissionCreateProject); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("project title is required")
	}
	if in.TotalBudget < 0 {
		return nil, apperr.Validation("total budget must not be negative")
	}
	budgets := make([]float64, 0, len(in.Milestones))
	for i, m := range in.Milestones {
		if err := validateMilestone(i, m); err != nil {
			return nil, err
		}
		budgets = append(budgets, m.Budget)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	now := s.now()
	result := &ProjectResult{
		Project: &model.Project{
			Title:       title,
			Description: in.Description,
			Location:    in.Location,
			TotalBudget: in.TotalBudget,
			Currency:    currency,
			Status:      model.ProjectActive,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
		},
	}
	if w := budgetWarning(in.TotalBudget, budgets...); w != "" {
		result.Warnings = append(result.Warnings, w)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.Projects().Insert(ctx, result.Project); err != nil {
			return err
		}
		for i, in := range in.Milestones {
			m := newMilestone(result.Project.ID, i, in, now)
			if err := tx.Milestones().Insert(ctx, &m); err != nil {
				return err
			}
			result.Milestones = append(result.Milestones, m)
		}
		return tx.Outbox().Enqueue(ctx, "project", result.Project.ID, contracts.RoutingKeyProjectCreated,
			contracts.ProjectCreatedPayload{
				EventMeta:      contracts.NewEventMeta(contracts.RoutingKeyProjectCreated, trace.FromContext(ctx), now),
				ProjectID:      result.Project.ID,
				Title:          result.Project.Title,
				CreatedBy:      actor.ID,
				MilestoneCount: len(result.Milestones),
				Warnings:       result.Warnings,
				RecipientIDs:   []int64{actor.ID},
			})
	})
	if err != nil {
		log.Error("CreateProject failed", zap.Error(err))
		return nil, access.StoreErr(err, "project", 0)
	}

	if len(result.Warnings) > 0 {
		log.Warn("Project budget overrun",
			zap.Int64("project_id", result.Project.ID),
			zap.Strings("warnings", result.Warnings),
		)
	}
	log.Info("Project created",
		zap.Int64("project_id", result.Project.ID),
		zap.Int("milestone_count", len(result.Milestones)),
	)
	return result, nil
}

func newMilestone(projectID int64, position int, in MilestoneInput, now time.Time) model.Milestone {
	order := position
	if in.SortOrder != nil {
		order = *in.SortOrder
	}
	return model.Milestone{
		ProjectID:   projectID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		SortOrder:   order,
		DueDate:     in.DueDate,
		Budget:      in.Budget,
		Status:      model.MilestoneNotStarted,
		CreatedAt:   now,
	}
}

type MilestoneResult struct {
	Milestone *model.Milestone `json:"milestone"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// AddMilestone appends a milestone; ADMIN or the consultant in charge.
func (s *Service) AddMilestone(ctx context.Context, actor model.Actor, projectID int64, in MilestoneInput) (*MilestoneResult, error) {
	log := logger.WithTrace(ctx, s.logger)

	if err := access.Require(actor, rbac.PermissionAddMilestone); err != nil {
		return nil, err
	}
	if err := validateMilestone(0, in); err != nil {
		return nil, err
	}

	result := &MilestoneResult{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		p, err := access.VisibleProject(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		existing, err := tx.Milestones().ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		budgets := []float64{in.Budget}
		for _, m := range existing {
			budgets = append(budgets, m.Budget)
		}
		if w := budgetWarning(p.TotalBudget, budgets...); w != "" {
			result.Warnings = append(result.Warnings, w)
		}

		m := newMilestone(projectID, len(existing), in, s.now())
		if err := tx.Milestones().Insert(ctx, &m); err != nil {
			return err
		}
		result.Milestone = &m
		return nil
	})
	if err != nil {
		return nil, access.StoreErr(err, "project", projectID)
	}

	if len(result.Warnings) > 0 {
		log.Warn("Project budget overrun", zap.Int64("project_id", projectID), zap.Strings("warnings", result.Warnings))
	}
	log.Info("Milestone added", zap.Int64("project_id", projectID), zap.Int64("milestone_id", result.Milestone.ID))
	return result, nil
}

func (s *Service) GetProject(ctx context.Context, actor model.Actor, projectID int64) (*model.Project, error) {
	return access.VisibleProject(ctx, s.store, actor, projectID)
}

// ListProjects returns the projects visible to actor.
func (s *Service) ListProjects(ctx context.Context, actor model.Actor) ([]model.Project, error) {
	var filter store.ProjectFilter
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleConsultant:
		filter.ConsultantID = &actor.ID
	case model.RoleContractor:
		filter.ContractorID = &actor.ID
	default:
		return nil, apperr.Authorization("unknown role %q", actor.Role)
	}
	projects, err := s.store.Projects().List(ctx, filter)
	if err != nil {
		return nil, access.StoreErr(err, "project", 0)
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return projects, nil
}

func (s *Service) UpdateProjectStatus(ctx context.Context, actor model.Actor, projectID int64, status string) (*model.Project, error) {
	if err := access.Require(actor, rbac.PermissionUpdateProject); err != nil {
		return nil, err
	}
	st, err := model.ParseProjectStatus(status)
	if err != nil {
		return nil, err
	}
	if err := s.store.Projects().UpdateStatus(ctx, projectID, st); err != nil {
		return nil, access.StoreErr(err, "project", projectID)
	}
	logger.WithTrace(ctx, s.logger).Info("Project status changed",
		zap.Int64("project_id", projectID),
		zap.String("status", string(st)),
	)
	return s.GetProject(ctx, actor, projectID)
}

func (s *Service) ListMilestones(ctx context.Context, actor model.Actor, projectID int64) ([]model.Milestone, error) {
	if _, err := access.VisibleProject(ctx, s.store, actor, projectID); err != nil {
		return nil, err
	}
	ms, err := s.store.Milestones().ListByProject(ctx, projectID)
	if err != nil {
		return nil, access.StoreErr(err, "project", projectID)
	}
	if ms == nil {
		ms = []model.Milestone{}
	}
	return ms, nil
}

// StartMilestone lets the assigned contractor flag work as begun.
func (s *Service) StartMilestone(ctx context.Context, actor model.Actor, milestoneID int64) (*model.Milestone, error) {
	if err := access.Require(actor, rbac.PermissionStartMilestone); err != nil {
		return nil, err
	}

	var out *model.Milestone
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		m, err := tx.Milestones().GetForUpdate(ctx, milestoneID)
		if err != nil {
			return access.StoreErr(err, "milestone", milestoneID)
		}
		if _, err := access.VisibleProject(ctx, tx, actor, m.ProjectID); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.NotFound("milestone", milestoneID)
			}
			return err
		}
		if err := access.AssignedToMilestone(ctx, tx, actor, m); err != nil {
			return err
		}
		switch m.Status {
		case model.MilestoneCompleted:
			return apperr.Conflict("milestone %d is already completed", milestoneID)
		case model.MilestoneNotStarted:
			if err := tx.Milestones().UpdateStatus(ctx, milestoneID, model.MilestoneInProgress); err != nil {
				return err
			}
			m.Status = model.MilestoneInProgress
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, access.StoreErr(err, "milestone", milestoneID)
	}
	return out, nil
}

// RegisterActor mirrors a user from the identity provider.
func (s *Service) RegisterActor(ctx context.Context, actor model.Actor, id int64, role string, fullName string) (*model.Actor, error) {
	if err := access.Require(actor, rbac.PermissionRegisterActor); err != nil {
		return nil, err
	}
	return s.registerActor(ctx, id, role, fullName)
}

// Bootstrap registers an actor without a caller, for the first ADMIN.
func (s *Service) Bootstrap(ctx context.Context, id int64, role string, fullName string) (*model.Actor, error) {
	return s.registerActor(ctx, id, role, fullName)
}

func (s *Service) registerActor(ctx context.Context, id int64, role string, fullName string) (*model.Actor, error) {
	if id <= 0 {
		return nil, apperr.Validation("actor id must be positive")
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, apperr.Validation("full name is required")
	}

	a := &model.Actor{ID: id, Role: r, FullName: fullName, CreatedAt: s.now()}
	if err := s.store.Actors().Insert(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("actor %d is registered with another role", id)
		}
		return nil, access.StoreErr(err, "actor", id)
	}
	return a, nil
}

// requireActor loads id and checks its role; a missing or mismatched actor
// is a validation error of the request.
func requireActor(ctx context.Context, repos store.Repositories, id int64, role model.Role) error {
	a, err := repos.Actors().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Validation("actor %d is not registered", id)
	}
	if err != nil {
		return access.StoreErr(err, "actor", id)
	}
	if a.Role != role {
		return apperr.Validation("actor %d is a %s, not a %s", id, a.Role, role)
	}
	return nil
}
