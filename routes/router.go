package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/queue"
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/middleware"
	"property-chatbot-api/models"
	"property-chatbot-api/services"
)

type ChatResponder interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

type Uploader interface {
	Upload(ctx context.Context, in services.UploadInput) (*models.UploadResponse, error)
}

type SessionManager interface {
	Cleanup(ctx context.Context, sessionID string) (*models.CleanupResponse, error)
	Documents(ctx context.Context, sessionID string) (*services.SessionDocuments, error)
	Transcript(ctx context.Context, sessionID string) ([]models.Exchange, error)
}

type IndexerAdmin interface {
	IndexerStatus(ctx context.Context) (*models.IndexerStatus, error)
	RunIndexer(ctx context.Context) error
}

// Dependencies are the services the HTTP layer dispatches to. Redis enables
// rate limiting and Queue enables reindex requests; both may be nil.
type Dependencies struct {
	Config   *config.Config
	Redis    *redis.Client
	Chat     ChatResponder
	Uploads  Uploader
	Sessions SessionManager
	Indexer  IndexerAdmin
	Queue    queue.Enqueuer
	Metrics  *telemetry.Metrics
}

// NewRouter builds the engine with the global middleware chain and every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	}
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(deps.Metrics))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	if err := SetupRoutes(router, deps); err != nil {
		return nil, err
	}
	return router, nil
}

// SetupRoutes registers the public health endpoints and the key-protected /api group.
func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": cfg.ServiceName, "timestamp": time.Now().UTC()})
	})

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	protected := api.Group("")
	protected.Use(middleware.APIKeyAuth(cfg.ChatbotAPIKey))

	chatLimit, err := limiter(deps.Redis, "chat", cfg.RateLimitChat)
	if err != nil {
		return err
	}
	uploadLimit, err := limiter(deps.Redis, "upload", cfg.RateLimitUpload)
	if err != nil {
		return err
	}

	setupChatRoutes(protected, deps.Chat, chatLimit)
	setupUploadRoutes(protected, cfg, deps.Uploads, uploadLimit)
	setupSessionRoutes(protected, deps.Sessions)
	setupIndexerRoutes(protected, deps.Indexer, deps.Queue)
	return nil
}

func limiter(rdb *redis.Client, name, expr string) (gin.HandlerFunc, error) {
	if rdb == nil {
		return func(c *gin.Context) { c.Next() }, nil
	}
	return middleware.RateLimit(rdb, name, expr)
}
