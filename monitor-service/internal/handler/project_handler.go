package handler

import (
	"net/http"

	"projectmonitor/monitor-service/internal/service/registry"
	"projectmonitor/pkg/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	registry *registry.Service
	logger   *zap.Logger
}

func NewProjectHandler(svc *registry.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{registry: svc, logger: logger}
}

type milestoneRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Budget      float64 `json:"budget"`
	DueDate     string  `json:"due_date"`
	SortOrder   *int    `json:"sort_order"`
}

func (r milestoneRequest) input() (registry.MilestoneInput, error) {
	due, err := parseDate(r.DueDate)
	if err != nil {
		return registry.MilestoneInput{}, err
	}
	return registry.MilestoneInput{
		Title:       r.Title,
		Description: r.Description,
		Budget:      r.Budget,
		DueDate:     due,
		SortOrder:   r.SortOrder,
	}, nil
}

type createProjectRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Location    string             `json:"location"`
	TotalBudget float64            `json:"total_budget"`
	Currency    string             `json:"currency"`
	Milestones  []milestoneRequest `json:"milestones"`
}

// CreateProject POST /projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in := registry.CreateProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		TotalBudget: req.TotalBudget,
		Currency:    req.Currency,
	}
	for _, m := range req.Milestones {
		mi, err := m.input()
		if err != nil {
			writeError(c, h.logger, "CreateProject", err)
			return
		}
		in.Milestones = append(in.Milestones, mi)
	}

	res, err := h.registry.CreateProject(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, h.logger, "CreateProject", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListProjects GET /projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	projects, err := h.registry.ListProjects(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.logger, "ListProjects", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject GET /projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.registry.GetProject(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "GetProject", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProjectStatus PATCH /projects/:id/status
func (h *ProjectHandler) UpdateProjectStatus(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p, err := h.registry.UpdateProjectStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		writeError(c, h.logger, "UpdateProjectStatus", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// AssignConsultant PUT /projects/:id/consultant
func (h *ProjectHandler) AssignConsultant(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ConsultantID int64 `json:"consultant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ConsultantID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consultant_id required"})
		return
	}
	p, err := h.registry.AssignConsultant(c.Request.Context(), actor, id, req.ConsultantID)
	if err != nil {
		writeError(c, h.logger, "AssignConsultant", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// AddContractor POST /projects/:id/contractors
func (h *ProjectHandler) AddContractor(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ContractorID int64 `json:"contractor_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ContractorID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contractor_id required"})
		return
	}
	added, err := h.registry.AddProjectContractor(c.Request.Context(), actor, id, req.ContractorID)
	if err != nil {
		writeError(c, h.logger, "AddContractor", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// ListContractors GET /projects/:id/contractors
func (h *ProjectHandler) ListContractors(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	pool, err := h.registry.GetProjectContractors(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ListContractors", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contractors": pool})
}

// AddMilestone POST /projects/:id/milestones
func (h *ProjectHandler) AddMilestone(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(c, h.logger, "AddMilestone", err)
		return
	}
	res, err := h.registry.AddMilestone(c.Request.Context(), actor, id, in)
	if err != nil {
		writeError(c, h.logger, "AddMilestone", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListMilestones GET /projects/:id/milestones
func (h *ProjectHandler) ListMilestones(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ms, err := h.registry.ListMilestones(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ListMilestones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": ms})
}

// StartMilestone POST /milestones/:id/start
func (h *ProjectHandler) StartMilestone(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	m, err := h.registry.StartMilestone(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "StartMilestone", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// CreateSection POST /projects/:id/sections
func (h *ProjectHandler) CreateSection(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req registry.SectionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sec, err := h.registry.CreateSection(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, h.logger, "CreateSection", err)
		return
	}
	c.JSON(http.StatusCreated, sec)
}

// ListSections GET /projects/:id/sections
func (h *ProjectHandler) ListSections(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sections, err := h.registry.ListSections(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "ListSections", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

// GetSection GET /sections/:id
func (h *ProjectHandler) GetSection(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sec, err := h.registry.GetSection(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, "GetSection", err)
		return
	}
	c.JSON(http.StatusOK, sec)
}

// LinkMilestones POST /sections/:id/milestones
func (h *ProjectHandler) LinkMilestones(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		MilestoneIDs []int64 `json:"milestone_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sec, err := h.registry.LinkMilestones(c.Request.Context(), actor, id, req.MilestoneIDs)
	if err != nil {
		writeError(c, h.logger, "LinkMilestones", err)
		return
	}
	c.JSON(http.StatusOK, sec)
}

// AssignContractor PUT /sections/:id/contractor
func (h *ProjectHandler) AssignContractor(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ContractorID int64 `json:"contractor_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ContractorID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contractor_id required"})
		return
	}
	res, err := h.registry.AssignContractor(c.Request.Context(), actor, id, req.ContractorID)
	if err != nil {
		writeError(c, h.logger, "AssignContractor", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RegisterActor POST /actors
func (h *ProjectHandler) RegisterActor(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req struct {
		ID       int64  `json:"id"`
		Role     string `json:"role"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, "RegisterActor", apperr.Validation("invalid request body"))
		return
	}
	a, err := h.registry.RegisterActor(c.Request.Context(), actor, req.ID, req.Role, req.FullName)
	if err != nil {
		writeError(c, h.logger, "RegisterActor", err)
		return
	}
	c.JSON(http.StatusCreated, a)
}
