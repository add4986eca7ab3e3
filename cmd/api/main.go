package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/handlers"
	"github.com/microblog/microblog/internal/middleware"
	"github.com/microblog/microblog/internal/repository"
	"github.com/microblog/microblog/internal/services"
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
	logger.Info("Starting microblog API server...")

	db, err := repository.NewDatabase(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	ctx := context.Background()

	// counts fall back to the database when redis is disabled
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

	var producer queue.Publisher = queue.NopPublisher{}
	if cfg.Kafka.Enabled {
		userEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer userEventsProducer.Close()
		producer = userEventsProducer
	}

	userRepo := repository.NewUserRepository(db.DB)
	followRepo := repository.NewFollowRepository(db.DB)
	postRepo := repository.NewPostRepository(db.DB)
	timelineRepo := repository.NewTimelineRepository(db.DB)

	userService := services.NewUserService(db, userRepo, followRepo, postRepo, counts, producer, &cfg.JWT, logger)
	postService := services.NewPostService(db, postRepo, timelineRepo, userRepo, producer, &cfg.Timeline, logger)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(logger))

	engine.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router := &handlers.Router{
		Users:  handlers.NewUserHandler(userService, postService, &cfg.JWT, logger),
		Posts:  handlers.NewPostHandler(postService, userService, logger),
		Health: db,
		Logger: logger,
	}
	router.RegisterRoutes(engine, &middleware.JWTConfig{Secret: cfg.JWT.Secret})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
