package main

import (
	"context"
	"log"
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
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/services"

	"github.com/hibiken/asynq"
)

// a single document analysis during a rebuild may run long
const rebuildExtractionTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics(cfg.ServiceName + "-worker")
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	blobs, err := blob.NewService(cfg.StorageConnectionString, cfg.StorageContainer)
	if err != nil {
		log.Fatal("Failed to initialize blob storage:", err)
	}
	embedder, err := ai.NewEmbedderFromConfig(context.Background(), cfg, nil)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	searchClient := search.NewClient(search.Options{
		Endpoint:    cfg.SearchEndpoint,
		APIKey:      cfg.SearchKey,
		IndexName:   cfg.SearchIndexName,
		IndexerName: cfg.SearchIndexerName,
		APIVersion:  cfg.SearchAPIVersion,
	}, nil, embedder, blobs)

	// Whole documents: no page cap when rebuilding the index
	extractor := docintel.NewFromConfig(cfg, 0, rebuildExtractionTimeout)
	reindexer := services.NewReindexer(blobs, searchClient, embedder, extractor, metrics, cfg.ChunkSize, cfg.ChunkOverlap)

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	queue.NewTaskProcessor(reindexer, searchClient).Register(mux)

	// Cron schedules enqueue through the same Redis
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	scheduler := queue.NewScheduler(queueClient)
	if err := scheduler.ScheduleIndexer(cfg.IndexerCron); err != nil {
		log.Fatal("Invalid INDEXER_CRON:", err)
	}
	if err := scheduler.ScheduleRebuild(cfg.ReindexCron); err != nil {
		log.Fatal("Invalid REINDEX_CRON:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Starting Asynq worker",
		"concurrency", cfg.WorkerConcurrency,
		"scheduled_jobs", scheduler.Jobs(),
		"indexer_cron", cfg.IndexerCron,
		"reindex_cron", cfg.ReindexCron,
	)

	if err := server.Start(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")
	server.Shutdown()
}
