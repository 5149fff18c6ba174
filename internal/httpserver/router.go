package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nexus/internal/handler"
	"nexus/pkg/otel"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker is implemented by the MQ publisher.
type ConnChecker interface {
	IsConnected() bool
}

type Deps struct {
	Auth     *handler.AuthHandler
	Projects *handler.ProjectHandler
	GitHub   *handler.GitHubHandler
	Brief    *handler.BriefHandler
	// Socket serves the notification WebSocket at /ws.
	Socket http.Handler

	JWTSecret   string
	CORSOrigins []string
	Store       Pinger
	// MQ is nil when the broker is disabled.
	MQ     ConnChecker
	Logger *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(
		RecoveryMiddleware(d.Logger),
		TraceMiddleware(),
		otel.GinMiddleware(),
		MetricsMiddleware(),
		LoggingMiddleware(d.Logger),
		CORSMiddleware(d.CORSOrigins),
	)

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if d.Store != nil {
			if err := d.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_not_ready", "error": err.Error()})
				return
			}
		}
		if d.MQ != nil && !d.MQ.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Socket != nil {
		r.GET("/ws", gin.WrapH(d.Socket))
	}

	api := r.Group("/api")

	// Public
	api.POST("/auth/register", d.Auth.Register)
	api.POST("/auth/login", d.Auth.Login)
	api.POST("/auth/google", d.Auth.Google)
	api.POST("/github/webhook", d.GitHub.Webhook)

	// Protected
	authed := api.Group("/")
	authed.Use(AuthMiddleware(d.JWTSecret))
	{
		authed.GET("/auth/me", d.Auth.Me)

		p := authed.Group("/projects")
		p.GET("", d.Projects.List)
		p.POST("", d.Projects.Create)
		p.GET("/:id", d.Projects.Get)
		p.PUT("/:id", d.Projects.Update)
		p.DELETE("/:id", d.Projects.Delete)

		p.POST("/:id/members", d.Projects.AddMember)
		p.DELETE("/:id/members/:member", d.Projects.RemoveMember)

		p.POST("/:id/tasks", d.Projects.CreateTask)
		p.PUT("/:id/tasks/:taskId", d.Projects.UpdateTask)
		p.DELETE("/:id/tasks/:taskId", d.Projects.DeleteTask)
		p.POST("/:id/tasks/:taskId/updates", d.Projects.AddTaskUpdate)

		p.GET("/:id/milestones", d.Projects.Milestones)
		p.POST("/:id/milestones", d.Projects.CreateMilestone)
		p.PUT("/:id/milestones/:mid", d.Projects.UpdateMilestone)
		p.DELETE("/:id/milestones/:mid", d.Projects.DeleteMilestone)

		p.POST("/:id/requirements/functional", d.Projects.CreateFunctional)
		p.PUT("/:id/requirements/functional/:rid", d.Projects.UpdateFunctional)
		p.DELETE("/:id/requirements/functional/:rid", d.Projects.DeleteFunctional)
		p.POST("/:id/requirements/non-functional", d.Projects.CreateNonFunctional)
		p.PUT("/:id/requirements/non-functional/:rid", d.Projects.UpdateNonFunctional)
		p.DELETE("/:id/requirements/non-functional/:rid", d.Projects.DeleteNonFunctional)

		g := authed.Group("/github")
		g.PUT("/projects/:id/connect", d.GitHub.Connect)
		g.DELETE("/projects/:id/connect", d.GitHub.Disconnect)
		g.POST("/projects/:id/sync", d.GitHub.Sync)
		g.GET("/projects/:id/activity", d.GitHub.Activity)
		g.GET("/installations/:installationId/repositories", d.GitHub.InstallationRepositories)

		authed.GET("/ai/projects/:id/brief", d.Brief.Get)
	}

	return &Router{Engine: r}
}
