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
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/internal/analytics"
	"github.com/support-agent/backend/internal/api/handlers"
	"github.com/support-agent/backend/internal/cache"
	rediscache "github.com/support-agent/backend/internal/cache/redis"
	"github.com/support-agent/backend/internal/ingestion"
	"github.com/support-agent/backend/internal/llm"
	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/middleware/ratelimit"
	"github.com/support-agent/backend/internal/middleware/security"
	"github.com/support-agent/backend/internal/middleware/validation"
	"github.com/support-agent/backend/internal/query"
	"github.com/support-agent/backend/internal/storage/sqlite"
	"github.com/support-agent/backend/internal/vector/milvus"
	"github.com/support-agent/backend/pkg/config"
	appLogger "github.com/support-agent/backend/pkg/logger"
)

const version = "1.0.0"

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

	appLogger.Info("Starting Support Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	redisClient, err := rediscache.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	milvusClient, err := milvus.NewClient(
		cfg.Vector.Endpoint,
		cfg.Vector.CollectionName,
		cfg.Vector.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	reasoner := agent.NewReasoner(llmClient)
	answerCache := cache.NewStore(redisClient, cfg.Cache.TTL())
	retriever := query.NewVectorRetriever(llmClient, milvusClient)
	engine := query.NewEngine(answerCache, retriever, reasoner, sqliteClient, cfg.Vector.TopK)

	processor := ingestion.NewProcessor(
		sqliteClient,
		milvusClient,
		llmClient,
		cfg.Ingestion.ChunkSize,
		cfg.Ingestion.ChunkOverlap,
		cfg.Ingestion.ScratchDir,
	)

	analyticsService := analytics.NewService(sqliteClient, answerCache, cfg.Cache.TTL())

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Customer-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxUploadSize: cfg.Server.BodyLimit,
	}))

	queryHandler := handlers.NewQueryHandler(engine)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient, milvusClient)
	conversationHandler := handlers.NewConversationHandler(sqliteClient)
	feedbackHandler := handlers.NewFeedbackHandler(sqliteClient)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	translateHandler := handlers.NewTranslateHandler(reasoner)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)

	api.Post("/documents", documentHandler.UploadDocuments)
	api.Get("/kb/status", documentHandler.GetStatus)
	api.Get("/kb/documents", documentHandler.ListDocuments)
	api.Delete("/kb/documents/:id", documentHandler.DeleteDocument)

	api.Get("/conversations/:id", conversationHandler.GetConversation)
	api.Delete("/conversations/:id", conversationHandler.DeleteConversation)

	api.Post("/feedback", feedbackHandler.SubmitFeedback)

	api.Get("/analytics/summary", analyticsHandler.GetSummary)
	api.Get("/analytics/sentiment", analyticsHandler.GetSentimentTrend)
	api.Get("/analytics/feedback", analyticsHandler.GetFeedbackDistribution)
	api.Get("/analytics/cache", analyticsHandler.GetCacheStats)

	api.Post("/translate", translateHandler.Translate)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

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
