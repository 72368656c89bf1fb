package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"projectmonitor/monitor-service/internal/handler"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/metrics"
	"projectmonitor/pkg/trace"
	"projectmonitor/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 添加请求日志中间件
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String(trace.TraceIDKey, trace.FromContext(c.Request.Context())),
		)
	}
}

// TraceMiddleware reuses an incoming X-Trace-ID or starts a new one, and
// echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// ActorLookup reads registered actors; nil skips the lookup.
type ActorLookup interface {
	Get(ctx context.Context, id int64) (*model.Actor, error)
}

// AuthMiddleware turns the bearer token into a model.Actor. A registered
// actor must carry the role it was registered with; its full name is
// filled from the registry.
func AuthMiddleware(jwtSecret string, actors ActorLookup, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		role, err := model.ParseRole(claims.Role)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		actor := model.Actor{ID: claims.ActorID, Role: role}
		if actors != nil {
			registered, err := actors.Get(c.Request.Context(), actor.ID)
			switch {
			case err == nil:
				if registered.Role != actor.Role {
					c.JSON(http.StatusForbidden, gin.H{"error": "role does not match registration"})
					c.Abort()
					return
				}
				actor.FullName = registered.FullName
			case errors.Is(err, store.ErrNotFound):
			default:
				logger.Warn("Actor lookup failed", zap.Int64("actor_id", actor.ID), zap.Error(err))
			}
		}

		c.Set(handler.ActorKey, actor)
		c.Next()
	}
}
