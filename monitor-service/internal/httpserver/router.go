package httpserver

import (
	"context"
	"time"

	"projectmonitor/monitor-service/internal/handler"
	"projectmonitor/pkg/otel"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is anything /readyz should wait for.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Connected interface {
	IsConnected() bool
}

type Handlers struct {
	Projects    *handler.ProjectHandler
	Submissions *handler.SubmissionHandler
	Progress    *handler.ProgressHandler
	Comments    *handler.CommentHandler
	Blobs       *handler.BlobHandler
	// Admin is nil when no broker is configured.
	Admin *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, actors ActorLookup, db Pinger, publisher Connected, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogger(logger))
	r.Use(otel.GinMiddleware())
	r.Use(MetricsMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// signed links carry their own token
	r.GET("/blobs/*path", h.Blobs.ServeBlob)

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret, actors, logger))
	{
		auth.POST("/actors", h.Projects.RegisterActor)

		auth.POST("/projects", h.Projects.CreateProject)
		auth.GET("/projects", h.Projects.ListProjects)
		auth.GET("/projects/:id", h.Projects.GetProject)
		auth.PATCH("/projects/:id/status", h.Projects.UpdateProjectStatus)
		auth.PUT("/projects/:id/consultant", h.Projects.AssignConsultant)
		auth.POST("/projects/:id/contractors", h.Projects.AddContractor)
		auth.GET("/projects/:id/contractors", h.Projects.ListContractors)
		auth.POST("/projects/:id/milestones", h.Projects.AddMilestone)
		auth.GET("/projects/:id/milestones", h.Projects.ListMilestones)
		auth.POST("/projects/:id/sections", h.Projects.CreateSection)
		auth.GET("/projects/:id/sections", h.Projects.ListSections)
		auth.GET("/projects/:id/submissions", h.Submissions.ListProjectSubmissions)
		auth.GET("/projects/:id/progress", h.Progress.ProjectProgress)
		auth.POST("/projects/:id/comments", h.Comments.AddComment)
		auth.GET("/projects/:id/comments", h.Comments.ListComments)

		auth.GET("/sections/:id", h.Projects.GetSection)
		auth.POST("/sections/:id/milestones", h.Projects.LinkMilestones)
		auth.PUT("/sections/:id/contractor", h.Projects.AssignContractor)
		auth.GET("/sections/:id/progress", h.Progress.SectionProgress)

		auth.POST("/milestones/:id/start", h.Projects.StartMilestone)
		auth.POST("/milestones/:id/submissions", h.Submissions.CreateSubmission)
		auth.GET("/milestones/:id/submissions", h.Submissions.ListMilestoneSubmissions)
		auth.GET("/milestones/:id/progress", h.Progress.MilestoneProgress)

		auth.GET("/submissions/:id", h.Submissions.GetSubmission)
		auth.POST("/submissions/:id/approve", h.Submissions.ApproveSubmission)
		auth.POST("/submissions/:id/query", h.Submissions.QuerySubmission)

		if h.Admin != nil {
			auth.POST("/admin/outbox/replay", h.Admin.ReplayOutboxEvent)
			auth.POST("/admin/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}
