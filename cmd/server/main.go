package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/handler"
	"github.com/tapi-backend/internal/kafka"
	"github.com/tapi-backend/internal/metrics"
	"github.com/tapi-backend/internal/postgres"
	"github.com/tapi-backend/internal/redis"
	"github.com/tapi-backend/internal/service"
	"github.com/tapi-backend/internal/websocket"
	"github.com/tapi-backend/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Bootstrap the schema
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize the Redis best-score mirror; the service runs without it
	var mirror *redis.Mirror
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		mirror, err = redis.NewMirror(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without live mirror", "error", err)
		} else {
			defer mirror.Close()
			logger.Info("connected to Redis")
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Initialize metrics and services
	m := metrics.New()
	userService := service.NewUserService(repo, m, logger)
	leaderboardService := service.NewLeaderboardService(repo, &cfg.Leaderboard, logger)

	var gameMirror service.BestScoreMirror
	var mirrorRebuilder worker.MirrorRebuilder
	if mirror != nil {
		gameMirror = mirror
		mirrorRebuilder = mirror
	}
	gameService := service.NewGameService(repo, gameMirror, wsHub, &cfg.Leaderboard, m, logger)

	// Initialize the aggregate reconciler
	reconciler := worker.NewReconciler(repo, mirrorRebuilder, &cfg.Reconcile, cfg.Leaderboard.MaxLimit, m, logger)
	if cfg.Reconcile.Enabled {
		// Run once at startup so a crash before shutdown is repaired early
		reconciler.RunOnce(ctx)
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("failed to start reconciler", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-volume record ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, gameService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(userService, gameService, leaderboardService, wsHub, m, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if cfg.Reconcile.Enabled {
		if err := reconciler.Stop(); err != nil {
			logger.Error("failed to stop reconciler", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
