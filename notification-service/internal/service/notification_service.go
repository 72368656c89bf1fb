package service

import (
	"context"
	"fmt"

	"projectmonitor/notification-service/internal/repository"
	"projectmonitor/pkg/logger"
	"projectmonitor/pkg/metrics"

	"go.uber.org/zap"
)

type Store interface {
	Insert(ctx context.Context, n *repository.Notification) (bool, error)
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]repository.Notification, error)
	MarkAsRead(ctx context.Context, id, recipientID int64) error
}

type NotificationService struct {
	store     Store
	sender    Sender
	channel   string
	listLimit int
	logger    *zap.Logger
}

func NewNotificationService(store Store, sender Sender, channel string, listLimit int, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:     store,
		sender:    sender,
		channel:   channel,
		listLimit: listLimit,
		logger:    logger,
	}
}

// Deliver records and sends one notification per recipient. Recipients
// already recorded for the event are skipped, so redelivery is safe. A
// failed send is only logged and counted under status "failed": the inbox
// row stays readable through List but the message is never sent again.
func (s *NotificationService) Deliver(ctx context.Context, r *Rendered) (int, error) {
	log := logger.WithTrace(ctx, s.logger)
	sent := 0
	for _, recipient := range r.Recipients {
		n := &repository.Notification{
			EventID:     r.EventID,
			RecipientID: recipient,
			Channel:     s.channel,
			Kind:        r.Kind,
			Message:     r.Message,
		}
		inserted, err := s.store.Insert(ctx, n)
		if err != nil {
			return sent, fmt.Errorf("record notification for %d: %w", recipient, err)
		}
		if !inserted {
			continue
		}

		if err := s.sender.Send(ctx, n); err != nil {
			metrics.IncrementNotificationSent(s.channel, "failed")
			log.Error("Failed to send notification",
				zap.Int64("notification_id", n.ID),
				zap.String("channel", s.channel),
				zap.Error(err),
			)
			continue
		}
		metrics.IncrementNotificationSent(s.channel, "sent")
		sent++
	}
	return sent, nil
}

func (s *NotificationService) List(ctx context.Context, recipientID int64) ([]repository.Notification, error) {
	return s.store.ListByRecipient(ctx, recipientID, s.listLimit)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, id, recipientID int64) error {
	return s.store.MarkAsRead(ctx, id, recipientID)
}
