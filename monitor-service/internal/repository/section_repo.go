package repository

import (
	"context"
	"errors"
	"time"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type SectionRepository struct {
	base
}

func (r *SectionRepository) Insert(ctx context.Context, s *model.Section) error {
	r.logger.Debug("Inserting section",
		zap.Int64("project_id", s.ProjectID),
		zap.String("name", s.Name),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	err := r.q.QueryRow(ctx, `
        INSERT INTO sections (project_id, name, description, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, s.ProjectID, s.Name, s.Description, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		r.logger.Error("Failed to insert section", zap.Error(err))
		return translate(err)
	}

	r.logger.Info("Section inserted successfully",
		zap.Int64("section_id", s.ID),
		zap.Int64("project_id", s.ProjectID),
	)
	return nil
}

func (r *SectionRepository) Get(ctx context.Context, id int64) (*model.Section, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	var s model.Section
	err := r.q.QueryRow(ctx, `
        SELECT s.id, s.project_id, s.name, s.description, s.created_at, sa.contractor_id
        FROM sections s
        LEFT JOIN section_assignments sa ON sa.section_id = s.id
        WHERE s.id = $1
    `, id).Scan(&s.ID, &s.ProjectID, &s.Name, &s.Description, &s.CreatedAt, &s.ContractorID)
	if err != nil {
		return nil, translate(err)
	}

	rows, err := r.q.Query(ctx, `
        SELECT milestone_id FROM section_milestones WHERE section_id = $1 ORDER BY milestone_id
    `, id)
	if err != nil {
		return nil, err
	}
	s.MilestoneIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SectionRepository) ListByProject(ctx context.Context, projectID int64) ([]model.Section, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
        SELECT s.id, s.project_id, s.name, s.description, s.created_at, sa.contractor_id
        FROM sections s
        LEFT JOIN section_assignments sa ON sa.section_id = s.id
        WHERE s.project_id = $1
        ORDER BY s.id ASC
    `, projectID)
	if err != nil {
		r.logger.Error("Failed to list sections", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, err
	}

	var sections []model.Section
	index := make(map[int64]int)
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Description, &s.CreatedAt, &s.ContractorID); err != nil {
			rows.Close()
			return nil, err
		}
		index[s.ID] = len(sections)
		sections = append(sections, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := r.q.Query(ctx, `
        SELECT sm.section_id, sm.milestone_id
        FROM section_milestones sm
        JOIN sections s ON s.id = sm.section_id
        WHERE s.project_id = $1
        ORDER BY sm.milestone_id
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var sectionID, milestoneID int64
		if err := links.Scan(&sectionID, &milestoneID); err != nil {
			return nil, err
		}
		if i, ok := index[sectionID]; ok {
			sections[i].MilestoneIDs = append(sections[i].MilestoneIDs, milestoneID)
		}
	}
	return sections, links.Err()
}

func (r *SectionRepository) LinkMilestone(ctx context.Context, sectionID, milestoneID int64) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	_, err := r.q.Exec(ctx, `
        INSERT INTO section_milestones (section_id, milestone_id) VALUES ($1, $2)
    `, sectionID, milestoneID)
	if err != nil {
		err = translate(err)
		if errors.Is(err, store.ErrConflict) {
			r.logger.Warn("Milestone already linked to a section",
				zap.Int64("section_id", sectionID),
				zap.Int64("milestone_id", milestoneID),
			)
		} else {
			r.logger.Error("Failed to link milestone", zap.Error(err))
		}
		return err
	}
	return nil
}

func (r *SectionRepository) SectionOfMilestone(ctx context.Context, milestoneID int64) (*model.Section, error) {
	var sectionID int64
	qctx, cancel := r.bounded(ctx)
	err := r.q.QueryRow(qctx, `
        SELECT section_id FROM section_milestones WHERE milestone_id = $1
    `, milestoneID).Scan(&sectionID)
	cancel()
	if err != nil {
		return nil, translate(err)
	}
	return r.Get(ctx, sectionID)
}

func (r *SectionRepository) Assign(ctx context.Context, sectionID, contractorID int64, at time.Time) (*int64, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	// prev is evaluated against the snapshot taken before the upsert.
	var previous *int64
	err := r.q.QueryRow(ctx, `
        WITH prev AS (
            SELECT contractor_id FROM section_assignments WHERE section_id = $1
        )
        INSERT INTO section_assignments (section_id, contractor_id, assigned_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (section_id) DO UPDATE
            SET contractor_id = EXCLUDED.contractor_id, assigned_at = EXCLUDED.assigned_at
        RETURNING (SELECT contractor_id FROM prev)
    `, sectionID, contractorID, at).Scan(&previous)
	if err != nil {
		r.logger.Error("Failed to assign contractor",
			zap.Int64("section_id", sectionID),
			zap.Int64("contractor_id", contractorID),
			zap.Error(err),
		)
		return nil, translate(err)
	}
	return previous, nil
}
