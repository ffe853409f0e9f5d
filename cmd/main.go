package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property-chatbot-api/internal/ai"
	"property-chatbot-api/internal/blob"
	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/docintel"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/queue"
	"property-chatbot-api/internal/search"
	"property-chatbot-api/internal/session"
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/routes"
	"property-chatbot-api/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.ChatbotAPIKey == "" {
		logger.Warn("CHATBOT_API_KEY is not set; /api routes are unauthenticated")
	}

	if cfg.OTelEnabled {
		shutdown, err := telemetry.InitTracer(cfg.ServiceName, cfg.OTelEndpoint, cfg.GinMode, cfg.OTelSampleRatio)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics(cfg.ServiceName)
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Redis holds sessions, history and rate limit counters
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// MongoDB is optional; without it transcripts are not archived
	var transcripts services.TranscriptStore = services.NoopTranscriptStore{}
	if cfg.MongoURI != "" {
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		}()
		transcripts = services.NewMongoTranscriptStore(mongoClient.Database(cfg.DBName))
	} else {
		logger.Warn("MONGO_URI is not set; transcripts will not be archived")
	}

	blobs, err := blob.NewService(cfg.StorageConnectionString, cfg.StorageContainer)
	if err != nil {
		log.Fatal("Failed to initialize blob storage:", err)
	}

	ctx := context.Background()
	embedder, err := ai.NewEmbedderFromConfig(ctx, cfg, nil)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	llm, llmCloser, err := ai.NewLLMFromConfig(ctx, cfg, nil, metrics)
	if err != nil {
		log.Fatal("Failed to initialize LLM provider:", err)
	}
	defer llmCloser.Close()

	searchClient := search.NewClient(search.Options{
		Endpoint:             cfg.SearchEndpoint,
		APIKey:               cfg.SearchKey,
		IndexName:            cfg.SearchIndexName,
		IndexerName:          cfg.SearchIndexerName,
		APIVersion:           cfg.SearchAPIVersion,
		MaxChunksPerDocument: cfg.MaxChunksPerDocument,
	}, nil, embedder, blobs)

	store := session.NewStore(rdb, cfg.SessionTTL, cfg.MaxUploadsPerSession, cfg.MaxConversationTurns)
	extractor := docintel.NewFromConfig(cfg, cfg.MaxUploadPages, cfg.RequestTimeout)

	deps := routes.Dependencies{
		Config:   cfg,
		Redis:    rdb,
		Chat:     services.NewChatService(store, searchClient, llm, transcripts, metrics, cfg.MaxSearchResults),
		Uploads:  services.NewUploadService(store, extractor, transcripts, metrics, cfg.MaxFileSizeBytes),
		Sessions: services.NewSessionService(store, transcripts, metrics, cfg.PurgeTranscriptsOnCleanup),
		Indexer:  searchClient,
		Metrics:  metrics,
	}

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal(err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	deps.Queue = queueClient

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := routes.NewRouter(deps)
	if err != nil {
		log.Fatal("Failed to build router:", err)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting",
			"port", cfg.Port,
			"llm_provider", cfg.LLMProvider,
			"search_index", cfg.SearchIndexName,
			"document_intelligence", cfg.DocIntelEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
