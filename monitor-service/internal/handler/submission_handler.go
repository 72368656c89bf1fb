package handler

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"projectmonitor/monitor-service/internal/service/workflow"
	"projectmonitor/pkg/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipart form fields of a submission
const (
	formWorkDescription = "work_description"
	formMaterials       = "materials"
	formEvidence        = "evidence"
)

type SubmissionHandler struct {
	workflow *workflow.Service
	maxBytes int64
	logger   *zap.Logger
}

// NewSubmissionHandler caps each request body at maxBytes.
func NewSubmissionHandler(svc *workflow.Service, maxBytes int64, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{workflow: svc, maxBytes: maxBytes, logger: logger}
}

// CreateSubmission POST /milestones/:id/submissions
//
// multipart/form-data: work_description, materials (JSON array), evidence
// (files, repeated). The optional Idempotency-Key header makes retries safe.
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	milestoneID, ok := idParam(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, h.logger, "CreateSubmission", apperr.Validation("invalid multipart form: %v", err))
		return
	}

	in := workflow.SubmissionInput{
		MilestoneID:     milestoneID,
		WorkDescription: first(form.Value[formWorkDescription]),
		IdempotencyKey:  c.GetHeader(IdempotencyHeader),
	}
	if raw := first(form.Value[formMaterials]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Materials); err != nil {
			writeError(c, h.logger, "CreateSubmission", apperr.Validation("materials must be a JSON array"))
			return
		}
	}
	for _, fh := range form.File[formEvidence] {
		f, err := readPart(fh)
		if err != nil {
			writeError(c, h.logger, "CreateSubmission", apperr.Validation("read evidence %q: %v", fh.Filename, err))
			return
		}
		in.Evidence = append(in.Evidence, f)
	}

	res, err := h.workflow.CreateSubmission(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, h.logger, "CreateSubmission", err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res.Submission)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func readPart(fh *multipart.FileHeader) (workflow.EvidenceFile, error) {
	f, err := fh.Open()
	if err != nil {
		return workflow.EvidenceFile{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return workflow.EvidenceFile{}, err
	}
	return workflow.EvidenceFile{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// GetSubmission GET /submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.workflow.GetSubmission(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "GetSubmission", err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListMilestoneSubmissions GET /milestones/:id/submissions
func (h *SubmissionHandler) ListMilestoneSubmissions(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	subs, err := h.workflow.ListMilestoneSubmissions(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ListMilestoneSubmissions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

// ListProjectSubmissions GET /projects/:id/submissions?status=
func (h *SubmissionHandler) ListProjectSubmissions(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	subs, err := h.workflow.ListProjectSubmissions(c.Request.Context(), actor, id, c.Query("status"))
	if err != nil {
		writeError(c, h.logger, "ListProjectSubmissions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

// ApproveSubmission POST /submissions/:id/approve
func (h *SubmissionHandler) ApproveSubmission(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.workflow.ApproveSubmission(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ApproveSubmission", err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// QuerySubmission POST /submissions/:id/query
func (h *SubmissionHandler) QuerySubmission(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		QueryNote string `json:"query_note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sub, err := h.workflow.QuerySubmission(c.Request.Context(), actor, id, req.QueryNote)
	if err != nil {
		writeError(c, h.logger, "QuerySubmission", err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
