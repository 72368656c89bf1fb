package service

import (
	"context"
	"fmt"
	"strings"

	"projectmonitor/notification-service/internal/repository"

	"go.uber.org/zap"
)

// Sender delivers one stored notification.
type Sender interface {
	Send(ctx context.Context, n *repository.Notification) error
}

// LogSender stands in for a real provider by logging the delivery.
type LogSender struct {
	channel string
	logger  *zap.Logger
}

func NewLogSender(channel string, logger *zap.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n *repository.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("Sending notification",
		zap.String("channel", s.channel),
		zap.Int64("notification_id", n.ID),
		zap.Int64("recipient_id", n.RecipientID),
		zap.String("kind", n.Kind),
		zap.String("message", n.Message),
	)
	return nil
}

var supportedChannels = []string{"EMAIL", "PUSH", "WEBHOOK"}

// NewSender returns the sender for channel.
func NewSender(channel string, logger *zap.Logger) (Sender, error) {
	channel = strings.ToUpper(channel)
	for _, c := range supportedChannels {
		if c == channel {
			return NewLogSender(channel, logger), nil
		}
	}
	return nil, fmt.Errorf("unsupported channel: %s", channel)
}
