package repository

import (
	"context"

	"projectmonitor/monitor-service/internal/model"

	"go.uber.org/zap"
)

type CommentRepository struct {
	base
}

func (r *CommentRepository) Insert(ctx context.Context, c *model.Comment) error {
	r.logger.Debug("Inserting comment",
		zap.Int64("project_id", c.ProjectID),
		zap.Int64("author_id", c.AuthorID),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	err := r.q.QueryRow(ctx, `
        INSERT INTO comments (project_id, author_id, body, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, c.ProjectID, c.AuthorID, c.Body, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		r.logger.Error("Failed to insert comment", zap.Error(err))
		return translate(err)
	}

	r.logger.Info("Comment inserted successfully",
		zap.Int64("comment_id", c.ID),
		zap.Int64("project_id", c.ProjectID),
	)
	return nil
}

func (r *CommentRepository) ListWithAuthors(ctx context.Context, projectID int64) ([]model.Comment, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
        SELECT c.id, c.project_id, c.author_id, c.body, c.created_at, a.full_name, a.role
        FROM comments c
        LEFT JOIN actors a ON a.id = c.author_id
        WHERE c.project_id = $1
        ORDER BY c.created_at DESC, c.id DESC
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var (
			c        model.Comment
			fullName *string
			role     *string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Body, &c.CreatedAt, &fullName, &role); err != nil {
			return nil, err
		}
		if fullName != nil && role != nil {
			c.Author = &model.CommentAuthor{FullName: *fullName, Role: model.Role(*role)}
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *CommentRepository) List(ctx context.Context, projectID int64) ([]model.Comment, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
        SELECT id, project_id, author_id, body, created_at
        FROM comments
        WHERE project_id = $1
        ORDER BY created_at DESC, id DESC
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
