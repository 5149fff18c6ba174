package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/internal/service/project"
)

type ProjectHandler struct {
	projects *project.Service
	logger   *zap.Logger
}

func NewProjectHandler(svc *project.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: svc, logger: logger}
}

// List handles GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	projects, err := h.projects.List(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if projects == nil {
		projects = []*model.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req project.CreateInput
	if !bind(c, &req) {
		return
	}
	p, err := h.projects.Create(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Get handles GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Update handles PUT /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req project.UpdateInput
	if !bind(c, &req) {
		return
	}
	p, err := h.projects.Update(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}

// AddMember handles POST /api/projects/:id/members
func (h *ProjectHandler) AddMember(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Member string `json:"member" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	p, err := h.projects.AddMember(c.Request.Context(), a, c.Param("id"), req.Member)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RemoveMember handles DELETE /api/projects/:id/members/:member
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p, err := h.projects.RemoveMember(c.Request.Context(), a, c.Param("id"), c.Param("member"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateTask handles POST /api/projects/:id/tasks
func (h *ProjectHandler) CreateTask(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req project.TaskInput
	if !bind(c, &req) {
		return
	}
	t, err := h.projects.CreateTask(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTask handles PUT /api/projects/:id/tasks/:taskId
func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req project.TaskPatch
	if !bind(c, &req) {
		return
	}
	t, err := h.projects.UpdateTask(c.Request.Context(), a, c.Param("id"), c.Param("taskId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTask handles DELETE /api/projects/:id/tasks/:taskId
func (h *ProjectHandler) DeleteTask(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.projects.DeleteTask(c.Request.Context(), a, c.Param("id"), c.Param("taskId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

// AddTaskUpdate handles POST /api/projects/:id/tasks/:taskId/updates
func (h *ProjectHandler) AddTaskUpdate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	t, err := h.projects.AddTaskUpdate(c.Request.Context(), a, c.Param("id"), c.Param("taskId"), req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// Milestones handles GET /api/projects/:id/milestones
func (h *ProjectHandler) Milestones(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	ms, err := h.projects.Milestones(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if ms == nil {
		ms = []model.Milestone{}
	}
	c.JSON(http.StatusOK, ms)
}

// CreateMilestone handles POST /api/projects/:id/milestones
func (h *ProjectHandler) CreateMilestone(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req project.MilestoneInput
	if !bind(c, &req) {
		return
	}
	m, err := h.projects.CreateMilestone(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// UpdateMilestone handles PUT /api/projects/:id/milestones/:mid
func (h *ProjectHandler) UpdateMilestone(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req project.MilestonePatch
	if !bind(c, &req) {
		return
	}
	m, err := h.projects.UpdateMilestone(c.Request.Context(), a, c.Param("id"), c.Param("mid"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMilestone handles DELETE /api/projects/:id/milestones/:mid
func (h *ProjectHandler) DeleteMilestone(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.projects.DeleteMilestone(c.Request.Context(), a, c.Param("id"), c.Param("mid")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "milestone deleted"})
}
