package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/internal/service/github"
)

// maxWebhookBody GitHub caps payloads at 25 MB
const maxWebhookBody = 25 << 20

type GitHubHandler struct {
	github *github.Service
	logger *zap.Logger
}

func NewGitHubHandler(svc *github.Service, logger *zap.Logger) *GitHubHandler {
	return &GitHubHandler{github: svc, logger: logger}
}

// Webhook handles POST /api/github/webhook
func (h *GitHubHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	res, err := h.github.HandleWebhook(c.Request.Context(), github.Delivery{
		Event:     c.GetHeader("X-GitHub-Event"),
		ID:        c.GetHeader("X-GitHub-Delivery"),
		Signature: c.GetHeader("X-Hub-Signature-256"),
		Body:      body,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	switch res.Status {
	case github.WebhookIgnored, github.WebhookDuplicate:
		c.JSON(http.StatusAccepted, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

// Connect handles PUT /api/github/projects/:id/connect
func (h *GitHubHandler) Connect(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req github.ConnectInput
	if !bind(c, &req) {
		return
	}
	p, err := h.github.Connect(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Disconnect handles DELETE /api/github/projects/:id/connect
func (h *GitHubHandler) Disconnect(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p, err := h.github.Disconnect(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Sync handles POST /api/github/projects/:id/sync
func (h *GitHubHandler) Sync(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.github.Sync(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Activity handles GET /api/github/projects/:id/activity?limit=N
func (h *GitHubHandler) Activity(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	activity, err := h.github.Activity(c.Request.Context(), a, c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if activity == nil {
		activity = []model.GitHubActivity{}
	}
	c.JSON(http.StatusOK, activity)
}

// InstallationRepositories handles GET /api/github/installations/:installationId/repositories
func (h *GitHubHandler) InstallationRepositories(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("installationId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installation id"})
		return
	}
	repos, err := h.github.InstallationRepositories(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if repos == nil {
		repos = []github.Repository{}
	}
	c.JSON(http.StatusOK, repos)
}
