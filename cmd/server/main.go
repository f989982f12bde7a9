package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"narrative-server/internal/config"
	"narrative-server/internal/handler"
	"narrative-server/internal/logger"
	"narrative-server/internal/messaging"
	"narrative-server/internal/narrative"
	"narrative-server/internal/service"
	"narrative-server/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	registry, err := narrative.LoadRegistry(cfg.ContentDir, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load content registry", zap.Error(err))
	}

	store, cleanup, err := setupStore(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to set up progress store", zap.Error(err))
	}
	defer cleanup()

	events, eventsCleanup := setupEvents(cfg, zapLogger)
	defer eventsCleanup()

	manager := service.NewProgressManager(store, registry, events, zapLogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.ZapLoggingMiddleware(zapLogger))
	router.Use(cors.Default())

	prom := ginprometheus.NewPrometheus("narrative")
	prom.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "chapters": registry.Len()})
	})

	storyHandler := handler.NewStoryHandler(manager, zapLogger)
	storyHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zapLogger.Info("Narrative service listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// setupStore selects the progress store backend from configuration.
func setupStore(cfg *config.Config, zapLogger *zap.Logger) (storage.ProgressStore, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, func() {}, err
		}
		zapLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
		return storage.NewRedisStore(client, zapLogger), func() { client.Close() }, nil

	case config.BackendPostgres:
		if err := storage.RunMigrations(cfg.DatabaseURL, zapLogger); err != nil {
			return nil, func() {}, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		zapLogger.Info("Connected to PostgreSQL")
		return storage.NewPostgresStore(pool, zapLogger), pool.Close, nil

	default:
		zapLogger.Warn("Using in-memory progress store; progress is lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// setupEvents wires the narrative event publisher when a broker is
// configured, and a nop publisher otherwise.
func setupEvents(cfg *config.Config, zapLogger *zap.Logger) (messaging.EventPublisher, func()) {
	if cfg.RabbitMQURL == "" {
		return messaging.NopPublisher{}, func() {}
	}
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Warn("RabbitMQ unavailable, narrative events disabled", zap.Error(err))
		return messaging.NopPublisher{}, func() {}
	}
	publisher, err := messaging.NewRabbitMQPublisher(conn, cfg.EventsQueue, zapLogger)
	if err != nil {
		zapLogger.Warn("Failed to create event publisher, narrative events disabled", zap.Error(err))
		conn.Close()
		return messaging.NopPublisher{}, func() {}
	}
	zapLogger.Info("Narrative event publisher ready", zap.String("queue", cfg.EventsQueue))
	return publisher, func() { conn.Close() }
}
