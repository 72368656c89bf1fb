package repository

import (
	"context"
	"errors"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ActorRepository struct {
	base
}

func (r *ActorRepository) Insert(ctx context.Context, a *model.Actor) error {
	r.logger.Debug("Registering actor",
		zap.Int64("actor_id", a.ID),
		zap.String("role", string(a.Role)),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	// A role mismatch leaves the row untouched and RETURNING empty.
	query := `
        INSERT INTO actors (id, role, full_name, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name
        WHERE actors.role = EXCLUDED.role
        RETURNING created_at
    `
	err := r.q.QueryRow(ctx, query, a.ID, string(a.Role), a.FullName, a.CreatedAt).Scan(&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Warn("Actor already registered with another role", zap.Int64("actor_id", a.ID))
		return store.ErrConflict
	}
	if err != nil {
		r.logger.Error("Failed to register actor", zap.Int64("actor_id", a.ID), zap.Error(err))
		return translate(err)
	}

	r.logger.Info("Actor registered", zap.Int64("actor_id", a.ID))
	return nil
}

func (r *ActorRepository) Get(ctx context.Context, id int64) (*model.Actor, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	var (
		a    model.Actor
		role string
	)
	err := r.q.QueryRow(ctx, `
        SELECT id, role, full_name, created_at FROM actors WHERE id = $1
    `, id).Scan(&a.ID, &role, &a.FullName, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if a.Role, err = model.ParseRole(role); err != nil {
		r.logger.Error("Malformed actor row", zap.Int64("actor_id", id), zap.Error(err))
		return nil, err
	}
	return &a, nil
}
