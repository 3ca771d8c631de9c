package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/api/handlers"
	"github.com/fieldatlas/backend/internal/cache/redis"
	"github.com/fieldatlas/backend/internal/ingestion"
	"github.com/fieldatlas/backend/internal/llm"
	"github.com/fieldatlas/backend/internal/metrics"
	"github.com/fieldatlas/backend/internal/middleware/ratelimit"
	"github.com/fieldatlas/backend/internal/middleware/security"
	"github.com/fieldatlas/backend/internal/middleware/validation"
	"github.com/fieldatlas/backend/internal/nlq"
	"github.com/fieldatlas/backend/internal/query"
	"github.com/fieldatlas/backend/internal/storage/sqlite"
	"github.com/fieldatlas/backend/pkg/config"
	appLogger "github.com/fieldatlas/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting FieldAtlas API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	refiner := nlq.NewRefiner(cfg.Refine.Strategy, llmClient, cfg.Refine.MaxToScore, cfg.Refine.MaxToReturn)

	// A nil *redis.Client must stay a nil interface inside the engine.
	var cache query.Cache
	if cacheClient != nil {
		cache = cacheClient
	}

	engine := query.NewEngine(sqliteClient, cache, llmClient, refiner, query.Options{
		FieldLimit:   cfg.Search.FieldLimit,
		ObjectLimit:  cfg.Search.ObjectLimit,
		NarrativeMax: cfg.Refine.MaxToReturn,
		CacheTTL:     time.Duration(cfg.Redis.TTLSec) * time.Second,
	})

	processor := ingestion.NewProcessor(sqliteClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.Search.MaxQueryLength,
		Logger:         appLogger.GetLogger(),
	}))

	var flush func()
	if cacheClient != nil {
		flush = func() {
			if err := cacheClient.Flush(context.Background()); err != nil {
				appLogger.Warn("Cache flush failed", zap.Error(err))
			}
		}
	}

	searchHandler := handlers.NewSearchHandler(engine)
	ingestHandler := handlers.NewIngestHandler(processor, flush)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/search", searchHandler.HandleSearch)
	api.Get("/search/recent", searchHandler.GetRecentQueries)
	api.Get("/examples", searchHandler.GetExamples)

	api.Post("/fields/upload", ingestHandler.HandleFieldUpload)
	api.Post("/objects/upload", ingestHandler.HandleObjectUpload)

	api.Get("/health", searchHandler.HandleHealth)
	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/search", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
