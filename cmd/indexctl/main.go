package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"property-chatbot-api/internal/ai"
	"property-chatbot-api/internal/blob"
	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/docintel"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/queue"
	"property-chatbot-api/internal/search"
	"property-chatbot-api/services"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func usage() {
	fmt.Println("Usage: indexctl <command>")
	fmt.Println("Commands:")
	fmt.Println("  list-documents  - List the unique document titles in the search index")
	fmt.Println("  reconcile       - Compare blob storage with the search index")
	fmt.Println("  reindex         - Queue a full index rebuild on the worker")
	fmt.Println("  reindex --now   - Rebuild the index in this process")
	fmt.Println("  status          - Show the search indexer status")
	fmt.Println("  ensure-indexes  - Create the MongoDB transcript indexes")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	switch command {
	case "list-documents":
		titles, err := newSearchClient(ctx, cfg).ListTitles(ctx)
		if err != nil {
			log.Fatalf("Listing documents failed: %v", err)
		}
		for _, t := range titles {
			fmt.Println(t)
		}
		fmt.Printf("%d documents in index %s\n", len(titles), cfg.SearchIndexName)

	case "reconcile":
		reindexer := newReindexer(ctx, cfg)
		missing, orphaned, err := reindexer.Reconcile(ctx)
		if err != nil {
			log.Fatalf("Reconcile failed: %v", err)
		}
		fmt.Printf("Missing from index (%d):\n", len(missing))
		for _, m := range missing {
			fmt.Println("  " + m)
		}
		fmt.Printf("Indexed without a blob (%d):\n", len(orphaned))
		for _, o := range orphaned {
			fmt.Println("  " + o)
		}

	case "reindex":
		if len(os.Args) > 2 && os.Args[2] == "--now" {
			reindexer := newReindexer(ctx, cfg)
			summary, err := reindexer.Run(ctx)
			if err != nil {
				log.Fatalf("Reindex failed: %v", err)
			}
			printJSON(summary)
			return
		}
		if err := enqueueRebuild(cfg); err != nil {
			log.Fatalf("Enqueue failed: %v", err)
		}

	case "status":
		status, err := newSearchClient(ctx, cfg).IndexerStatus(ctx)
		if err != nil {
			log.Fatalf("Indexer status failed: %v", err)
		}
		printJSON(status)

	case "ensure-indexes":
		if cfg.MongoURI == "" {
			log.Fatal("MONGO_URI is not set")
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer client.Disconnect(context.Background())

		if err := config.EnsureIndexes(ctx, client.Database(cfg.DBName)); err != nil {
			log.Fatalf("Creating indexes failed: %v", err)
		}
		fmt.Println("Indexes are in place")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

func newSearchClient(ctx context.Context, cfg *config.Config) *search.Client {
	c, _, _ := newClients(ctx, cfg)
	return c
}

func newClients(ctx context.Context, cfg *config.Config) (*search.Client, *blob.Service, *ai.Embedder) {
	blobs, err := blob.NewService(cfg.StorageConnectionString, cfg.StorageContainer)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	embedder, err := ai.NewEmbedderFromConfig(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("Failed to initialize embeddings: %v", err)
	}
	return search.NewClient(search.Options{
		Endpoint:    cfg.SearchEndpoint,
		APIKey:      cfg.SearchKey,
		IndexName:   cfg.SearchIndexName,
		IndexerName: cfg.SearchIndexerName,
		APIVersion:  cfg.SearchAPIVersion,
	}, nil, embedder, blobs), blobs, embedder
}

func newReindexer(ctx context.Context, cfg *config.Config) *services.Reindexer {
	searchClient, blobs, embedder := newClients(ctx, cfg)
	extractor := docintel.NewFromConfig(cfg, 0, 10*time.Minute)
	return services.NewReindexer(blobs, searchClient, embedder, extractor, nil, cfg.ChunkSize, cfg.ChunkOverlap)
}

func enqueueRebuild(cfg *config.Config) error {
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		return err
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	task, err := queue.NewRebuildIndexTask("indexctl")
	if err != nil {
		return err
	}
	info, err := client.Enqueue(task)
	if err != nil {
		return err
	}
	fmt.Printf("Queued %s as task %s on %s\n", task.Type(), info.ID, info.Queue)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal(err)
	}
}
