package repository

import (
	"context"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type SubmissionRepository struct {
	base
}

const submissionColumns = `s.id, s.milestone_id, s.contractor_id, s.status, s.work_description,
        s.query_note, s.idempotency_key, s.submitted_at, s.reviewed_at, s.reviewed_by`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var (
		s      model.Submission
		status string
	)
	if err := row.Scan(
		&s.ID,
		&s.MilestoneID,
		&s.ContractorID,
		&status,
		&s.WorkDescription,
		&s.QueryNote,
		&s.IdempotencyKey,
		&s.SubmittedAt,
		&s.ReviewedAt,
		&s.ReviewedBy,
	); err != nil {
		return nil, err
	}
	st, err := model.ParseSubmissionStatus(status)
	if err != nil {
		return nil, err
	}
	s.Status = st
	return &s, nil
}

// Insert writes the submission row and its evidence and material rows in one
// batch. Callers run it inside WithTx.
func (r *SubmissionRepository) Insert(ctx context.Context, s *model.Submission) error {
	r.logger.Debug("Inserting submission",
		zap.Int64("milestone_id", s.MilestoneID),
		zap.Int64("contractor_id", s.ContractorID),
		zap.Int("evidence_count", len(s.Evidence)),
		zap.Int("material_count", len(s.Materials)),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	err := r.q.QueryRow(ctx, `
        INSERT INTO submissions (milestone_id, contractor_id, status, work_description,
                                 idempotency_key, submitted_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `,
		s.MilestoneID,
		s.ContractorID,
		string(s.Status),
		s.WorkDescription,
		s.IdempotencyKey,
		s.SubmittedAt,
	).Scan(&s.ID)
	if err != nil {
		r.logger.Error("Failed to insert submission", zap.Error(err))
		return translate(err)
	}

	if len(s.Evidence)+len(s.Materials) > 0 {
		batch := &pgx.Batch{}
		for i := range s.Evidence {
			e := &s.Evidence[i]
			e.SubmissionID = s.ID
			batch.Queue(`
                INSERT INTO evidence (submission_id, file_path, file_name, file_type, file_size, created_at)
                VALUES ($1, $2, $3, $4, $5, $6)
                RETURNING id
            `, e.SubmissionID, e.FilePath, e.FileName, e.FileType, e.FileSize, e.CreatedAt).QueryRow(func(row pgx.Row) error {
				return row.Scan(&e.ID)
			})
		}
		for i := range s.Materials {
			m := &s.Materials[i]
			m.SubmissionID = s.ID
			batch.Queue(`
                INSERT INTO material_usage (submission_id, material_name, quantity, unit, created_at)
                VALUES ($1, $2, $3, $4, $5)
                RETURNING id
            `, m.SubmissionID, m.MaterialName, m.Quantity, m.Unit, m.CreatedAt).QueryRow(func(row pgx.Row) error {
				return row.Scan(&m.ID)
			})
		}
		if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
			r.logger.Error("Failed to insert submission details",
				zap.Int64("submission_id", s.ID),
				zap.Error(err),
			)
			return translate(err)
		}
	}

	r.logger.Info("Submission inserted successfully",
		zap.Int64("submission_id", s.ID),
		zap.Int64("milestone_id", s.MilestoneID),
	)
	return nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id int64) (*model.Submission, error) {
	return r.one(ctx, `SELECT `+submissionColumns+` FROM submissions s WHERE s.id = $1`, id)
}

func (r *SubmissionRepository) FindByIdempotencyKey(ctx context.Context, contractorID int64, key string) (*model.Submission, error) {
	return r.one(ctx, `
        SELECT `+submissionColumns+` FROM submissions s
        WHERE s.contractor_id = $1 AND s.idempotency_key = $2
    `, contractorID, key)
}

func (r *SubmissionRepository) Latest(ctx context.Context, milestoneID int64) (*model.Submission, error) {
	return r.one(ctx, `
        SELECT `+submissionColumns+` FROM submissions s
        WHERE s.milestone_id = $1
        ORDER BY s.submitted_at DESC, s.id DESC
        LIMIT 1
    `, milestoneID)
}

func (r *SubmissionRepository) one(ctx context.Context, query string, args ...any) (*model.Submission, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	s, err := scanSubmission(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	subs := []model.Submission{*s}
	if err := r.loadDetails(ctx, subs); err != nil {
		return nil, err
	}
	return &subs[0], nil
}

func (r *SubmissionRepository) LatestByProject(ctx context.Context, projectID int64) (map[int64]model.Submission, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	subs, err := r.list(ctx, `
        SELECT DISTINCT ON (s.milestone_id) `+submissionColumns+`
        FROM submissions s
        JOIN milestones m ON m.id = s.milestone_id
        WHERE m.project_id = $1
        ORDER BY s.milestone_id, s.submitted_at DESC, s.id DESC
    `, projectID)
	if err != nil {
		return nil, err
	}
	latest := make(map[int64]model.Submission, len(subs))
	for _, s := range subs {
		latest[s.MilestoneID] = s
	}
	return latest, nil
}

func (r *SubmissionRepository) ListByMilestone(ctx context.Context, milestoneID int64) ([]model.Submission, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	subs, err := r.list(ctx, `
        SELECT `+submissionColumns+` FROM submissions s
        WHERE s.milestone_id = $1
        ORDER BY s.submitted_at ASC, s.id ASC
    `, milestoneID)
	if err != nil {
		return nil, err
	}
	return subs, r.loadDetails(ctx, subs)
}

func (r *SubmissionRepository) ListByProject(ctx context.Context, projectID int64, status *model.SubmissionStatus) ([]model.Submission, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}
	subs, err := r.list(ctx, `
        SELECT `+submissionColumns+`
        FROM submissions s
        JOIN milestones m ON m.id = s.milestone_id
        WHERE m.project_id = $1 AND ($2::text IS NULL OR s.status = $2)
        ORDER BY s.submitted_at ASC, s.id ASC
    `, projectID, statusArg)
	if err != nil {
		return nil, err
	}
	return subs, r.loadDetails(ctx, subs)
}

func (r *SubmissionRepository) list(ctx context.Context, query string, args ...any) ([]model.Submission, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query submissions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// loadDetails attaches evidence and materials in two queries.
func (r *SubmissionRepository) loadDetails(ctx context.Context, subs []model.Submission) error {
	if len(subs) == 0 {
		return nil
	}
	ids := make([]int64, len(subs))
	index := make(map[int64]int, len(subs))
	for i := range subs {
		ids[i] = subs[i].ID
		index[subs[i].ID] = i
		subs[i].Evidence = []model.Evidence{}
		subs[i].Materials = []model.MaterialUsage{}
	}

	rows, err := r.q.Query(ctx, `
        SELECT id, submission_id, file_path, file_name, file_type, file_size, created_at
        FROM evidence WHERE submission_id = ANY($1) ORDER BY id
    `, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var e model.Evidence
		if err := rows.Scan(&e.ID, &e.SubmissionID, &e.FilePath, &e.FileName, &e.FileType, &e.FileSize, &e.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		i := index[e.SubmissionID]
		subs[i].Evidence = append(subs[i].Evidence, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.Query(ctx, `
        SELECT id, submission_id, material_name, quantity, unit, created_at
        FROM material_usage WHERE submission_id = ANY($1) ORDER BY id
    `, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var m model.MaterialUsage
		if err := rows.Scan(&m.ID, &m.SubmissionID, &m.MaterialName, &m.Quantity, &m.Unit, &m.CreatedAt); err != nil {
			return err
		}
		i := index[m.SubmissionID]
		subs[i].Materials = append(subs[i].Materials, m)
	}
	return rows.Err()
}

// Review applies a status-guarded transition.
func (r *SubmissionRepository) Review(ctx context.Context, rv store.Review) error {
	r.logger.Debug("Reviewing submission",
		zap.Int64("submission_id", rv.SubmissionID),
		zap.String("to", string(rv.To)),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	from := make([]string, len(rv.From))
	for i, st := range rv.From {
		from[i] = string(st)
	}

	tag, err := r.q.Exec(ctx, `
        UPDATE submissions
        SET status = $2, query_note = COALESCE($3, query_note), reviewed_at = $4, reviewed_by = $5
        WHERE id = $1 AND status = ANY($6)
    `, rv.SubmissionID, string(rv.To), rv.QueryNote, rv.At, rv.ReviewerID, from)
	if err != nil {
		r.logger.Error("Failed to review submission", zap.Int64("submission_id", rv.SubmissionID), zap.Error(err))
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Submission review guard missed",
			zap.Int64("submission_id", rv.SubmissionID),
			zap.Strings("expected", from),
		)
		return store.ErrConflict
	}

	r.logger.Info("Submission reviewed",
		zap.Int64("submission_id", rv.SubmissionID),
		zap.String("status", string(rv.To)),
	)
	return nil
}
