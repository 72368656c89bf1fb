package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type base struct {
	q       querier
	logger  *zap.Logger
	timeout time.Duration
}

// bounded applies the per-statement timeout.
func (b base) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

type repositories struct {
	b      base
	outbox store.Outbox
}

func (r repositories) Actors() store.ActorRepository           { return &ActorRepository{r.b} }
func (r repositories) Projects() store.ProjectRepository       { return &ProjectRepository{r.b} }
func (r repositories) Milestones() store.MilestoneRepository   { return &MilestoneRepository{r.b} }
func (r repositories) Sections() store.SectionRepository       { return &SectionRepository{r.b} }
func (r repositories) Submissions() store.SubmissionRepository { return &SubmissionRepository{r.b} }
func (r repositories) Comments() store.CommentRepository       { return &CommentRepository{r.b} }
func (r repositories) Outbox() store.Outbox                    { return r.outbox }

// Store is the Postgres implementation of store.Store.
type Store struct {
	repositories
	pool    *pgxpool.Pool
	events  *outbox.Repository
	logger  *zap.Logger
	timeout time.Duration
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger, queryTimeout time.Duration) *Store {
	events := outbox.NewRepository(pool)
	s := &Store{
		pool:    pool,
		events:  events,
		logger:  logger,
		timeout: queryTimeout,
	}
	s.repositories = repositories{
		b:      base{q: pool, logger: logger, timeout: queryTimeout},
		outbox: &poolOutbox{pool: pool, events: events},
	}
	return s
}

// Events exposes the outbox table for the dispatcher and replay commands.
func (s *Store) Events() *outbox.Repository {
	return s.events
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, repositories{
			b:      base{q: tx, logger: s.logger, timeout: s.timeout},
			outbox: &txOutbox{tx: tx, events: s.events},
		})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type txOutbox struct {
	tx     pgx.Tx
	events *outbox.Repository
}

func (o *txOutbox) Enqueue(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	return outbox.InsertEventInTx(ctx, o.tx, o.events, aggregateType, aggregateID, routingKey, payload)
}

// poolOutbox opens a short transaction of its own; callers that change
// state should enqueue through WithTx instead.
type poolOutbox struct {
	pool   *pgxpool.Pool
	events *outbox.Repository
}

func (o *poolOutbox) Enqueue(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	return pgx.BeginFunc(ctx, o.pool, func(tx pgx.Tx) error {
		return outbox.InsertEventInTx(ctx, tx, o.events, aggregateType, aggregateID, routingKey, payload)
	})
}
