package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nexus/config"
	"nexus/internal/events"
	"nexus/internal/handler"
	"nexus/internal/httpserver"
	"nexus/internal/notify"
	"nexus/internal/repository"
	"nexus/internal/service/auth"
	"nexus/internal/service/brief"
	"nexus/internal/service/github"
	"nexus/internal/service/project"
	pkgconfig "nexus/pkg/config"
	"nexus/pkg/logger"
	"nexus/pkg/mq"
	"nexus/pkg/otel"
	"nexus/pkg/outbox"
	redisclient "nexus/pkg/redis"
	"nexus/pkg/util"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	log := logger.New(cfg.Log)
	defer log.Sync()

	log.Info("Starting nexus server...",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("port", cfg.Server.Port),
		zap.Bool("durable_events", cfg.Events.Durable),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName: cfg.Otel.ServiceName,
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
		Enabled:     cfg.Otel.Enabled,
		SampleRatio: cfg.Otel.SampleRatio,
		Environment: pkgconfig.GetConfigEnv(),
	}, log)
	if err != nil {
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownOtel()
	}

	// 2. Storage
	ctx := context.Background()
	stores, err := repository.Open(ctx, cfg.Storage, cfg.DB, cfg.Mongo, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer stores.Close()

	// 3. Redis (dedupe + token cache), fail open
	rdb := redisclient.NewRedisClient(cfg.Redis, log)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	// 4. MQ publisher (optional)
	var publisher *mq.Publisher
	if cfg.MQ.Enabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Warn("MQ publisher unavailable", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// 5. Event bus and listeners
	bus := events.NewBus(log)
	hub := notify.NewHub(cfg.Server.CORSOrigins, log)
	defer hub.Close()
	bus.SubscribeAll(hub)

	slack := notify.NewSlackNotifier(cfg.Slack.WebhookURL, log)
	switch {
	case cfg.Events.Durable && stores.Pool != nil:
		bus.SubscribeAll(notify.NewOutboxRelay(outbox.NewRepository(stores.Pool), log))
		log.Info("Events relayed through the outbox")
	case cfg.Events.Durable && publisher != nil:
		bus.SubscribeAll(notify.NewPublisherRelay(publisher, log))
		log.Info("Events published straight to RabbitMQ")
	default:
		if cfg.Events.Durable {
			log.Warn("Durable events requested but neither postgres nor MQ is available, using direct Slack delivery")
		}
		if slack.Enabled() {
			bus.SubscribeAll(slack)
		}
	}

	// 6. GitHub App
	var repoAPI github.RepoAPI
	if cfg.GitHub.AppID != "" && cfg.GitHub.PrivateKeyPath != "" {
		key, err := github.LoadPrivateKey(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			log.Warn("GitHub App disabled", zap.Error(err))
		} else {
			var cache github.TokenCache = github.NewMemoryTokenCache()
			if cfg.GitHub.TokenCache == "redis" {
				cache = github.NewRedisTokenCache(rdb, log)
			}
			appAuth := github.NewAppAuth(cfg.GitHub.AppID, key, cfg.GitHub.APIBaseURL, cache, log)
			repoAPI = github.NewClient(cfg.GitHub.APIBaseURL, appAuth, log)
		}
	} else {
		log.Info("GitHub App not configured, sync and repository listing are disabled")
	}

	// 7. Services
	authService := auth.NewService(
		stores.Users,
		auth.NewGoogleVerifier(cfg.Google.ClientID, cfg.Google.TokenInfoURL, log),
		cfg.JWT.Secret,
		cfg.JWT.TTL,
		log,
	)
	projectService := project.NewService(stores.Projects, bus, log)
	githubService := github.NewService(stores.Projects, repoAPI, bus, deduper, cfg.GitHub.WebhookSecret, log).
		WithSyncLimit(cfg.GitHub.SyncLimit)
	gemini := brief.NewGeminiClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL, cfg.AI.Timeout, log)
	briefService := brief.NewService(stores.Projects, gemini, bus, cfg.AI.CacheTTL, log)

	// 8. Router
	deps := httpserver.Deps{
		Auth:        handler.NewAuthHandler(authService, log),
		Projects:    handler.NewProjectHandler(projectService, log),
		GitHub:      handler.NewGitHubHandler(githubService, log),
		Brief:       handler.NewBriefHandler(briefService, log),
		Socket:      hub,
		JWTSecret:   cfg.JWT.Secret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Store:       stores.Projects,
		Logger:      log,
	}
	if publisher != nil {
		deps.MQ = publisher
	}
	router := httpserver.NewRouter(deps)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down nexus server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("nexus server shutdown complete")
}
