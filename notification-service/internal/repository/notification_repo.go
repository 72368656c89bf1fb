package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	RecipientID int64     `json:"recipient_id"`
	Channel     string    `json:"channel"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

type NotificationRepository struct {
	db      *pgxpool.Pool
	logger  *zap.Logger
	timeout time.Duration
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger, queryTimeout time.Duration) *NotificationRepository {
	return &NotificationRepository{
		db:      db,
		logger:  logger,
		timeout: queryTimeout,
	}
}

func (r *NotificationRepository) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Insert stores n unless (event_id, recipient_id) was already recorded;
// the bool reports whether a row was written.
func (r *NotificationRepository) Insert(ctx context.Context, n *Notification) (bool, error) {
	r.logger.Debug("Inserting notification",
		zap.String("event_id", n.EventID),
		zap.Int64("recipient_id", n.RecipientID),
		zap.String("channel", n.Channel),
	)
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	err := r.db.QueryRow(ctx, `
        INSERT INTO notifications (event_id, recipient_id, channel, kind, message)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (event_id, recipient_id) DO NOTHING
        RETURNING id, created_at
    `, n.EventID, n.RecipientID, n.Channel, n.Kind, n.Message).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("Notification already recorded, skipping",
			zap.String("event_id", n.EventID),
			zap.Int64("recipient_id", n.RecipientID),
		)
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.Error(err))
		return false, err
	}

	r.logger.Info("Notification inserted successfully",
		zap.Int64("id", n.ID),
		zap.Int64("recipient_id", n.RecipientID),
	)
	return true, nil
}

// ListByRecipient returns the newest notifications first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]Notification, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `
        SELECT id, event_id, recipient_id, channel, kind, message, is_read, created_at
        FROM notifications
        WHERE recipient_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.RecipientID, &n.Channel, &n.Kind, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkAsRead flags a notification owned by recipientID.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, recipientID int64) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
