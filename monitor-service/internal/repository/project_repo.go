package repository

import (
	"context"
	"time"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ProjectRepository struct {
	base
}

const projectColumns = `p.id, p.title, p.description, p.location, p.total_budget, p.currency,
        p.status, p.consultant_id, p.created_by, p.created_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var (
		p      model.Project
		status string
	)
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Location,
		&p.TotalBudget,
		&p.Currency,
		&status,
		&p.ConsultantID,
		&p.CreatedBy,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	st, err := model.ParseProjectStatus(status)
	if err != nil {
		return nil, err
	}
	p.Status = st
	return &p, nil
}

func (r *ProjectRepository) Insert(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Inserting project",
		zap.Int64("created_by", p.CreatedBy),
		zap.String("title", p.Title),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `
        INSERT INTO projects (title, description, location, total_budget, currency, status,
                              consultant_id, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	err := r.q.QueryRow(ctx, query,
		p.Title,
		p.Description,
		p.Location,
		p.TotalBudget,
		p.Currency,
		string(p.Status),
		p.ConsultantID,
		p.CreatedBy,
		p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.Error(err))
		return translate(err)
	}

	r.logger.Info("Project inserted successfully", zap.Int64("project_id", p.ID))
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id int64) (*model.Project, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	p, err := scanProject(r.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func (r *ProjectRepository) List(ctx context.Context, filter store.ProjectFilter) ([]model.Project, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `
        SELECT ` + projectColumns + `
        FROM projects p
        WHERE ($1::bigint IS NULL OR p.consultant_id = $1 OR p.consultant_id IS NULL)
          AND ($2::bigint IS NULL OR EXISTS (
                SELECT 1 FROM project_contractors pc
                WHERE pc.project_id = p.id AND pc.contractor_id = $2))
        ORDER BY p.id ASC
    `
	rows, err := r.q.Query(ctx, query, filter.ConsultantID, filter.ContractorID)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) UpdateStatus(ctx context.Context, id int64, status model.ProjectStatus) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `UPDATE projects SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		r.logger.Error("Failed to update project status", zap.Int64("project_id", id), zap.Error(err))
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	r.logger.Info("Project status updated",
		zap.Int64("project_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

func (r *ProjectRepository) SetConsultant(ctx context.Context, id int64, consultantID int64) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `UPDATE projects SET consultant_id = $2 WHERE id = $1`, id, consultantID)
	if err != nil {
		r.logger.Error("Failed to assign consultant", zap.Int64("project_id", id), zap.Error(err))
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	r.logger.Info("Consultant assigned",
		zap.Int64("project_id", id),
		zap.Int64("consultant_id", consultantID),
	)
	return nil
}

func (r *ProjectRepository) AddContractor(ctx context.Context, projectID, contractorID int64, at time.Time) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
        INSERT INTO project_contractors (project_id, contractor_id, added_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (project_id, contractor_id) DO NOTHING
    `, projectID, contractorID, at)
	if err != nil {
		r.logger.Error("Failed to add project contractor",
			zap.Int64("project_id", projectID),
			zap.Int64("contractor_id", contractorID),
			zap.Error(err),
		)
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ProjectRepository) ListContractors(ctx context.Context, projectID int64) ([]model.ProjectContractor, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
        SELECT project_id, contractor_id, added_at
        FROM project_contractors
        WHERE project_id = $1
        ORDER BY seq ASC
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []model.ProjectContractor
	for rows.Next() {
		var pc model.ProjectContractor
		if err := rows.Scan(&pc.ProjectID, &pc.ContractorID, &pc.AddedAt); err != nil {
			return nil, err
		}
		pool = append(pool, pc)
	}
	return pool, rows.Err()
}

func (r *ProjectRepository) IsContractor(ctx context.Context, projectID, contractorID int64) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	var ok bool
	err := r.q.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM project_contractors WHERE project_id = $1 AND contractor_id = $2)
    `, projectID, contractorID).Scan(&ok)
	return ok, err
}
