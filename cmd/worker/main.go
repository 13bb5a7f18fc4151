package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"docgate/internal/cache"
	"docgate/internal/config"
	"docgate/internal/database"
	"docgate/internal/log"
	"docgate/internal/processor"
	"docgate/internal/queue"
	"docgate/internal/repository"
	"docgate/internal/storage"
	"docgate/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	handler := tasks.NewProcessor(
		repository.NewDocumentRepository(dbPool),
		objectStore,
		processor.NewClient(cfg.Processor),
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		cfg.Worker.MaxDeliveries,
		logger,
		handler,
	)

	logger.Info().Str("stream", cfg.Redis.Stream).Str("consumer", cfg.Worker.Consumer).Msg("worker starting")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited")
}
