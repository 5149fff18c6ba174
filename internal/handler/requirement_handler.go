package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nexus/internal/model"
)

// CreateFunctional handles POST /api/projects/:id/requirements/functional
func (h *ProjectHandler) CreateFunctional(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req model.FunctionalRequirement
	if !bind(c, &req) {
		return
	}
	r, err := h.projects.CreateFunctional(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateFunctional handles PUT /api/projects/:id/requirements/functional/:rid
func (h *ProjectHandler) UpdateFunctional(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req model.FunctionalRequirement
	if !bind(c, &req) {
		return
	}
	r, err := h.projects.UpdateFunctional(c.Request.Context(), a, c.Param("id"), c.Param("rid"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteFunctional handles DELETE /api/projects/:id/requirements/functional/:rid
func (h *ProjectHandler) DeleteFunctional(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.projects.DeleteFunctional(c.Request.Context(), a, c.Param("id"), c.Param("rid")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "requirement deleted"})
}

// CreateNonFunctional handles POST /api/projects/:id/requirements/non-functional
func (h *ProjectHandler) CreateNonFunctional(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req model.NonFunctionalRequirement
	if !bind(c, &req) {
		return
	}
	r, err := h.projects.CreateNonFunctional(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateNonFunctional handles PUT /api/projects/:id/requirements/non-functional/:rid
func (h *ProjectHandler) UpdateNonFunctional(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req model.NonFunctionalRequirement
	if !bind(c, &req) {
		return
	}
	r, err := h.projects.UpdateNonFunctional(c.Request.Context(), a, c.Param("id"), c.Param("rid"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteNonFunctional handles DELETE /api/projects/:id/requirements/non-functional/:rid
func (h *ProjectHandler) DeleteNonFunctional(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.projects.DeleteNonFunctional(c.Request.Context(), a, c.Param("id"), c.Param("rid")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "requirement deleted"})
}
