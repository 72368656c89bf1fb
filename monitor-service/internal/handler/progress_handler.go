package handler

import (
	"net/http"

	"projectmonitor/monitor-service/internal/service/comments"
	"projectmonitor/monitor-service/internal/service/progress"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProgressHandler struct {
	progress *progress.Service
	logger   *zap.Logger
}

func NewProgressHandler(svc *progress.Service, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{progress: svc, logger: logger}
}

// ProjectProgress GET /projects/:id/progress
func (h *ProgressHandler) ProjectProgress(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := h.progress.ProjectReport(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ProjectProgress", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// SectionProgress GET /sections/:id/progress
func (h *ProgressHandler) SectionProgress(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := h.progress.SectionReport(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "SectionProgress", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// MilestoneProgress GET /milestones/:id/progress
func (h *ProgressHandler) MilestoneProgress(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := h.progress.MilestoneReport(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "MilestoneProgress", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type CommentHandler struct {
	comments *comments.Service
	logger   *zap.Logger
}

func NewCommentHandler(svc *comments.Service, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{comments: svc, logger: logger}
}

// AddComment POST /projects/:id/comments
func (h *CommentHandler) AddComment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	comment, err := h.comments.AddComment(c.Request.Context(), actor, id, req.Body)
	if err != nil {
		writeError(c, h.logger, "AddComment", err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// ListComments GET /projects/:id/comments
func (h *CommentHandler) ListComments(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.comments.ListComments(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ListComments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": list})
}
