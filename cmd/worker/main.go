package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexus/config"
	"nexus/internal/mqhandler"
	"nexus/internal/notify"
	"nexus/pkg/db"
	pkgconfig "nexus/pkg/config"
	"nexus/pkg/logger"
	"nexus/pkg/mq"
	"nexus/pkg/otel"
	"nexus/pkg/outbox"
	redisclient "nexus/pkg/redis"
	"nexus/pkg/util"
)

const notifyQueue = "nexus.slack.q"

var routingKeys = []string{"project.#", "task.#", "milestone.#", "github.#", "brief.#"}

func main() {
	// Load config
	cfg := config.Load()

	log := logger.New(cfg.Log)
	defer log.Sync()

	log.Info("Starting worker service...",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("mq_url", cfg.MQ.URL),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName: cfg.Otel.ServiceName + "-worker",
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init Redis
	rdb := redisclient.NewRedisClient(cfg.Redis, log)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retries := util.NewRetryCounter(rdb, time.Hour)

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Slack consumer
	slack := notify.NewSlackNotifier(cfg.Slack.WebhookURL, log)
	if !slack.Enabled() {
		log.Warn("Slack webhook not configured, events will be acknowledged and dropped")
	}
	handler := mqhandler.NewEventNotificationHandler(slack, deduper, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, notifyQueue, routingKeys, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	consumer.WithRetry(retries, cfg.Events.ConsumerRetries)
	consumer.SetHandler(handler.Handle)

	g, gctx := errgroup.WithContext(ctx)

	// Outbox dispatcher, only the postgres driver writes an outbox
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "postgres" {
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("DB initialization failed", zap.Error(err))
		}
		defer pool.Close()

		dispatcher := outbox.NewDispatcher(outbox.NewRepository(pool), publisher, log).
			WithInterval(cfg.Events.OutboxInterval).
			WithMaxRetries(cfg.Events.OutboxMaxRetries)
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		if err := consumer.StartConsuming(); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("consumer delivery channel closed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		consumer.Stop()
		return nil
	})

	log.Info("Worker is ready to process messages", zap.String("queue", notifyQueue))

	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", zap.Error(err))
	}
	log.Info("Worker shutdown complete")
}
