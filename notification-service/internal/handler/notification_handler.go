package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"projectmonitor/notification-service/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationService interface {
	List(ctx context.Context, recipientID int64) ([]repository.Notification, error)
	MarkAsRead(ctx context.Context, id, recipientID int64) error
}

type NotificationHandler struct {
	svc    NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// ListNotifications GET /notifications?recipient_id=
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	recipientID, ok := recipientParam(c)
	if !ok {
		return
	}

	items, err := h.svc.List(c.Request.Context(), recipientID)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Int64("recipient_id", recipientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkAsRead POST /notifications/:id/read?recipient_id=
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	recipientID, ok := recipientParam(c)
	if !ok {
		return
	}

	if err := h.svc.MarkAsRead(c.Request.Context(), id, recipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to mark notification as read", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_read": true})
}

func recipientParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("recipient_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return 0, false
	}
	return id, true
}
