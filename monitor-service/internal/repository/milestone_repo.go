package repository

import (
	"context"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type MilestoneRepository struct {
	base
}

const milestoneColumns = `id, project_id, title, description, sort_order, due_date, budget, status, created_at`

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var (
		m      model.Milestone
		status string
	)
	if err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Title,
		&m.Description,
		&m.SortOrder,
		&m.DueDate,
		&m.Budget,
		&status,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	st, err := model.ParseStoredMilestoneStatus(status)
	if err != nil {
		return nil, err
	}
	m.Status = st
	return &m, nil
}

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) error {
	r.logger.Debug("Inserting milestone",
		zap.Int64("project_id", m.ProjectID),
		zap.String("title", m.Title),
		zap.Int("sort_order", m.SortOrder),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `
        INSERT INTO milestones (project_id, title, description, sort_order, due_date, budget, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	err := r.q.QueryRow(ctx, query,
		m.ProjectID,
		m.Title,
		m.Description,
		m.SortOrder,
		m.DueDate,
		m.Budget,
		string(m.Status),
		m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return translate(err)
	}

	r.logger.Info("Milestone inserted successfully",
		zap.Int64("milestone_id", m.ID),
		zap.Int64("project_id", m.ProjectID),
	)
	return nil
}

func (r *MilestoneRepository) Get(ctx context.Context, id int64) (*model.Milestone, error) {
	return r.get(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id)
}

func (r *MilestoneRepository) GetForUpdate(ctx context.Context, id int64) (*model.Milestone, error) {
	return r.get(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1 FOR UPDATE`, id)
}

func (r *MilestoneRepository) get(ctx context.Context, query string, id int64) (*model.Milestone, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	m, err := scanMilestone(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID int64) ([]model.Milestone, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
        SELECT `+milestoneColumns+`
        FROM milestones
        WHERE project_id = $1
        ORDER BY sort_order ASC, id ASC
    `, projectID)
	if err != nil {
		r.logger.Error("Failed to find milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var milestones []model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

func (r *MilestoneRepository) UpdateStatus(ctx context.Context, id int64, status model.MilestoneStatus) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `UPDATE milestones SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		r.logger.Error("Failed to update milestone status", zap.Int64("milestone_id", id), zap.Error(err))
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	r.logger.Info("Milestone status updated",
		zap.Int64("milestone_id", id),
		zap.String("status", string(status)),
	)
	return nil
}
