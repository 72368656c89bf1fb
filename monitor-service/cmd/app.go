package main

import (
	"context"
	"fmt"

	"projectmonitor/monitor-service/internal/config"
	"projectmonitor/monitor-service/internal/repository"
	"projectmonitor/pkg/db"
	"projectmonitor/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// app holds what every command needs: config, logger and the pool.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	pool  *pgxpool.Pool
	store *repository.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	log.Info("Connecting to database...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
	)
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		pool:  pool,
		store: repository.NewStore(pool, log, cfg.DB.QueryTimeout),
	}, nil
}

func (a *app) migrate(ctx context.Context) error {
	return db.RunMigrations(ctx, a.pool, a.log)
}

func (a *app) Close() {
	a.pool.Close()
	a.log.Sync()
}
