package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/services"
	"github.com/microblog/microblog/internal/workers"
	"github.com/microblog/microblog/pkg/cache"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/microblog/microblog/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.NewLogger(cfg.Log.Level)
	logger.Info("Starting microblog event worker...")

	if !cfg.Kafka.Enabled {
		logger.Fatal("Kafka is disabled; nothing to consume")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var counts *services.CountCache
	if cfg.Redis.Enabled {
		redisClient := cache.NewRedisClient(
			cfg.Redis.Addr(),
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			cfg.Redis.MinIdleConns,
		)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		counts = services.NewCountCache(redisClient, cfg.Redis.CountTTL, logger)
	}

	consumer := queue.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, logger.Logger)
	eventWorker := workers.NewEventWorker(counts, consumer, logger)

	done := make(chan error, 1)
	go func() {
		done <- eventWorker.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down worker...")
		cancel()
		if err := <-done; err != nil {
			logger.WithError(err).Error("Event worker stopped with error")
		}
	case err := <-done:
		if err != nil {
			logger.WithError(err).Error("Event worker stopped with error")
		}
	}

	if err := eventWorker.Stop(); err != nil {
		logger.WithError(err).Error("Failed to stop event worker")
	}

	logger.Info("Worker exited")
}
