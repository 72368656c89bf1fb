// Package access holds the visibility and permission rules every service
// applies before touching a project.
package access

import (
	"context"
	"errors"
	"fmt"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/rbac"
	"projectmonitor/pkg/util"
)

// Require checks the role permission table.
func Require(actor model.Actor, permission string) error {
	if err := rbac.CheckPermission(actor.ID, string(actor.Role), permission); err != nil {
		return apperr.Authorization("%s", err.Error())
	}
	return nil
}

// InCharge reports whether a consultant oversees p: the assigned consultant,
// or any consultant while none is assigned.
func InCharge(actor model.Actor, p *model.Project) bool {
	if !actor.Is(model.RoleConsultant) {
		return false
	}
	return p.ConsultantID == nil || *p.ConsultantID == actor.ID
}

// CanSee applies the project visibility rule.
func CanSee(ctx context.Context, repos store.Repositories, actor model.Actor, p *model.Project) (bool, error) {
	switch actor.Role {
	case model.RoleAdmin:
		return true, nil
	case model.RoleConsultant:
		return InCharge(actor, p), nil
	case model.RoleContractor:
		return repos.Projects().IsContractor(ctx, p.ID, actor.ID)
	default:
		return false, nil
	}
}

// VisibleProject loads a project the actor may see. Invisible projects are
// reported as not found.
func VisibleProject(ctx context.Context, repos store.Repositories, actor model.Actor, projectID int64) (*model.Project, error) {
	p, err := repos.Projects().Get(ctx, projectID)
	if err != nil {
		return nil, StoreErr(err, "project", projectID)
	}
	ok, err := CanSee(ctx, repos, actor, p)
	if err != nil {
		return nil, StoreErr(err, "project", projectID)
	}
	if !ok {
		return nil, apperr.NotFound("project", projectID)
	}
	return p, nil
}

// AssignedToMilestone checks that a contractor may work on m: the
// contractor of its section, or any pool contractor when m is unmapped.
func AssignedToMilestone(ctx context.Context, repos store.Repositories, actor model.Actor, m *model.Milestone) error {
	if !actor.Is(model.RoleContractor) {
		return apperr.Authorization("only contractors work on milestones")
	}
	sec, err := repos.Sections().SectionOfMilestone(ctx, m.ID)
	switch {
	case err == nil:
		if sec.ContractorID == nil || *sec.ContractorID != actor.ID {
			return apperr.Authorization("contractor %d is not assigned to milestone %d", actor.ID, m.ID)
		}
		return nil
	case errors.Is(err, store.ErrNotFound):
		ok, err := repos.Projects().IsContractor(ctx, m.ProjectID, actor.ID)
		if err != nil {
			return StoreErr(err, "project", m.ProjectID)
		}
		if !ok {
			return apperr.Authorization("contractor %d is not in the pool of project %d", actor.ID, m.ProjectID)
		}
		return nil
	default:
		return StoreErr(err, "milestone", m.ID)
	}
}

// StoreErr maps store sentinels to the application taxonomy. Transient
// driver failures become dependency errors; anything else is wrapped as is.
func StoreErr(err error, entity string, id int64) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(entity, id)
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict("%s %d: %v", entity, id, err)
	}
	if retryable, _ := util.IsRetryableError(err); retryable {
		return apperr.Dependency(err, "storage unavailable")
	}
	return fmt.Errorf("%s %d: %w", entity, id, err)
}
