package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nexus/internal/service/brief"
)

type BriefHandler struct {
	briefs *brief.Service
	logger *zap.Logger
}

func NewBriefHandler(svc *brief.Service, logger *zap.Logger) *BriefHandler {
	return &BriefHandler{briefs: svc, logger: logger}
}

// Get handles GET /api/ai/projects/:id/brief[?refresh=true]
func (h *BriefHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	refresh := c.Query("refresh") == "true"
	res, err := h.briefs.Get(c.Request.Context(), a, c.Param("id"), refresh)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
