package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ActorKey is where the auth middleware leaves the caller.
const ActorKey = "actor"

// IdempotencyHeader carries the client key of a submission.
const IdempotencyHeader = "Idempotency-Key"

func actorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return model.Actor{}, false
	}
	a, ok := v.(model.Actor)
	return a, ok
}

// mustActor aborts with 401 when the middleware did not run.
func mustActor(c *gin.Context) (model.Actor, bool) {
	a, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return model.Actor{}, false
	}
	return a, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps the error taxonomy onto HTTP. Unclassified errors are
// logged and hidden from the client.
func writeError(c *gin.Context, log *zap.Logger, op string, err error) {
	status := statusOf(err)
	log = logger.WithTrace(c.Request.Context(), log)
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Warn(op+" refused", zap.Int("status", status), zap.Error(err))
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.JSON(status, gin.H{"error": appErr.Message, "kind": appErr.Kind})
		return
	}
	c.JSON(status, gin.H{"error": "internal error"})
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
