/**
 * @description
 * This is the main entry point for the banklink-service. It loads configuration,
 * selects the storage, locking and event backends, wires the engine, the
 * verification expiry scheduler and the HTTP server, and shuts them down on
 * SIGINT/SIGTERM.
 *
 * @dependencies
 * - pgxpool for PostgreSQL, go-redis for distributed record locks, amqp091 for
 *   domain events, godotenv for local config.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/banklink-service/internal/api"
	"github.com/transfa/banklink-service/internal/app"
	"github.com/transfa/banklink-service/internal/config"
	"github.com/transfa/banklink-service/internal/store"
	"github.com/transfa/banklink-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found; using environment")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting banklink-service", "port", cfg.ServerPort)

	ctx := context.Background()

	// Storage: PostgreSQL when configured, otherwise the in-process repository.
	var repository store.Repository
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = 50
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute
		// Disable prepared statement caching to prevent conflicts
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()

		if err := store.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		repository = store.NewPostgresRepository(dbpool)
		logger.Info("database connection established")
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory repository")
		repository = store.NewMemoryRepository()
	}

	// Record locks: Redis across replicas, otherwise in-process.
	var locker app.Locker = app.NewKeyedLocker()
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using in-process locks", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using in-process locks", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				locker = app.NewRedisLocker(redisClient, cfg.RedisLockPrefix, cfg.RedisLockTTL(), logger)
				logger.Info("redis connected")
			}
		}
	}

	// Events: RabbitMQ behind a circuit breaker, otherwise a logging no-op.
	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		} else {
			publisher = rabbitmq.NewBreakerPublisher(producer, rabbitmq.DefaultBreakerConfig(), logger)
			logger.Info("rabbitmq producer connected")
		}
	}
	defer publisher.Close()

	location, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		location = time.UTC
	}

	engine := app.NewEngine(repository, app.Options{
		Locker:    locker,
		Publisher: publisher,
		Logger:    logger,
		Settings: app.Settings{
			AutoVerifyOnLink:        cfg.AutoVerifyOnLink,
			MaxConnectionsPerTenant: cfg.MaxConnectionsPerTenant,
			VerificationMaxAttempts: cfg.VerificationMaxAttempts,
			VerificationTTL:         cfg.VerificationTTL(),
			ProcessingDelay:         cfg.ProcessingDelay(),
			SettlementDelay:         cfg.SettlementDelay(),
			SettlementFailureRate:   cfg.SettlementFailureRate,
			ObserveFederalHolidays:  cfg.ObserveFederalHolidays,
			ProcessingFeeBps:        cfg.ProcessingFeeBasisPoints,
			Location:                location,
			EventsExchange:          cfg.EventsExchange,
		},
	})
	defer engine.Close()

	jobs := app.NewJobs(engine.Verification, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.VerificationExpirySchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler started")

	handlers := api.NewHandlers(engine, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           api.NewRouter(handlers, cfg.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()
	logger.Info("shutdown complete")
}
