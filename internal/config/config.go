package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderAzureOpenAI = "azure"
	ProviderGemini      = "gemini"
)

type Config struct {
	Port        string
	GinMode     string
	ServiceName string
	CORSOrigins []string

	// API key checked against X-API-Key. Empty disables the check.
	ChatbotAPIKey string

	// Azure Blob Storage
	StorageConnectionString string
	StorageContainer        string

	// Azure AI Search
	SearchEndpoint       string
	SearchKey            string
	SearchIndexName      string
	SearchDatasourceName string
	SearchIndexerName    string
	SearchAPIVersion     string

	// LLM provider selection: "azure" (default) or "gemini"
	LLMProvider string

	// Azure OpenAI chat
	AzureOpenAIKey        string
	AzureOpenAIEndpoint   string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string

	// Azure OpenAI embeddings
	EmbeddingEndpoint   string
	EmbeddingKey        string
	EmbeddingDeployment string
	EmbeddingAPIVersion string
	EmbeddingDimensions int

	// Gemini (alternate provider)
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string

	// Azure Document Intelligence
	DocIntelEndpoint   string
	DocIntelKey        string
	DocIntelAPIVersion string

	// Retrieval and chunking
	MaxSearchResults     int
	MaxChunksPerDocument int
	ChunkSize            int
	ChunkOverlap         int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// MongoDB transcript archive. Empty URI disables it.
	MongoURI string
	DBName   string

	// Sessions and history
	SessionTTL                time.Duration
	MaxConversationTurns      int
	PurgeTranscriptsOnCleanup bool

	// Upload limits
	MaxFileSizeMB        int
	MaxFileSizeBytes     int64
	MaxUploadPages       int
	MaxUploadsPerSession int

	// Rate limits in "N/unit" form
	RateLimitChat   string
	RateLimitUpload string

	RequestTimeout time.Duration

	// LLM client-side throttling
	LLMRequestsPerSecond float64
	LLMBurst             int

	// Telemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	// Worker
	WorkerConcurrency int
	IndexerCron       string
	ReindexCron       string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	origins, err := ParseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		GinMode:     getEnv("GIN_MODE", "release"),
		ServiceName: getEnv("SERVICE_NAME", "property-chatbot-api"),
		CORSOrigins: origins,

		ChatbotAPIKey: getEnv("CHATBOT_API_KEY", ""),

		StorageConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		StorageContainer:        getEnv("AZURE_STORAGE_CONTAINER_NAME", "filescontainer"),

		SearchEndpoint:       strings.TrimRight(getEnv("AZURE_SEARCH_ENDPOINT", ""), "/"),
		SearchKey:            getEnv("AZURE_SEARCH_KEY", ""),
		SearchIndexName:      getEnv("AZURE_SEARCH_INDEX_NAME", "azureblob-index-yotta"),
		SearchDatasourceName: getEnv("AZURE_SEARCH_DATASOURCE_NAME", "property-blob-datasource"),
		SearchIndexerName:    getEnv("AZURE_SEARCH_INDEXER_NAME", "azureblob-indexer-yotta"),
		SearchAPIVersion:     getEnv("AZURE_SEARCH_API_VERSION", "2024-07-01"),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderAzureOpenAI)),

		AzureOpenAIKey:        getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIDeployment: getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", "yotta-gpt-4o"),
		AzureOpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),

		EmbeddingEndpoint:   getEnv("AZURE_OPENAI_EMBEDDING_ENDPOINT", "https://yotta-openai-service.openai.azure.com/"),
		EmbeddingKey:        getEnv("AZURE_OPENAI_EMBEDDING_KEY", ""),
		EmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-large"),
		EmbeddingAPIVersion: getEnv("AZURE_OPENAI_EMBEDDING_API_VERSION", "2024-12-01-preview"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 3072),

		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		DocIntelEndpoint:   strings.TrimRight(getEnv("AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT", ""), "/"),
		DocIntelKey:        getEnv("AZURE_DOCUMENT_INTELLIGENCE_KEY", ""),
		DocIntelAPIVersion: getEnv("AZURE_DOCUMENT_INTELLIGENCE_API_VERSION", "2024-11-30"),

		MaxSearchResults:     getEnvInt("MAX_SEARCH_RESULTS", 15),
		MaxChunksPerDocument: getEnvInt("MAX_CHUNKS_PER_DOCUMENT", 7),
		ChunkSize:            getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 200),

		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 50),

		MongoURI: getEnv("MONGO_URI", ""),
		DBName:   getEnv("DB_NAME", "property_chatbot"),

		SessionTTL:                time.Duration(getEnvInt("SESSION_TTL_SECONDS", 7200)) * time.Second,
		MaxConversationTurns:      getEnvInt("MAX_CONVERSATION_TURNS", 10),
		PurgeTranscriptsOnCleanup: getEnvBool("PURGE_TRANSCRIPTS_ON_CLEANUP", false),

		MaxFileSizeMB:        getEnvInt("MAX_FILE_SIZE_MB", 15),
		MaxUploadPages:       getEnvInt("MAX_UPLOAD_PAGES", 15),
		MaxUploadsPerSession: getEnvInt("MAX_UPLOADS_PER_SESSION", 5),

		RateLimitChat:   getEnv("RATE_LIMIT_CHAT", "20/minute"),
		RateLimitUpload: getEnv("RATE_LIMIT_UPLOAD", "5/minute"),

		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,

		LLMRequestsPerSecond: getEnvFloat64("LLM_REQUESTS_PER_SECOND", 10),
		LLMBurst:             getEnvInt("LLM_BURST", 20),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 1.0),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		IndexerCron:       getEnv("INDEXER_CRON", ""),
		ReindexCron:       getEnv("REINDEX_CRON", ""),
	}
	cfg.MaxFileSizeBytes = int64(cfg.MaxFileSizeMB) * 1024 * 1024

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider credentials and the rate limit expressions.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAzureOpenAI:
		if c.AzureOpenAIKey == "" || c.AzureOpenAIEndpoint == "" {
			return fmt.Errorf("AZURE_OPENAI_API_KEY and AZURE_OPENAI_ENDPOINT are required when LLM_PROVIDER=azure")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if _, _, err := ParseRateLimit(c.RateLimitChat); err != nil {
		return fmt.Errorf("RATE_LIMIT_CHAT: %w", err)
	}
	if _, _, err := ParseRateLimit(c.RateLimitUpload); err != nil {
		return fmt.Errorf("RATE_LIMIT_UPLOAD: %w", err)
	}
	if c.MaxUploadsPerSession <= 0 || c.MaxUploadPages <= 0 || c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// DocIntelEnabled reports whether Document Intelligence credentials are set.
func (c *Config) DocIntelEnabled() bool {
	return c.DocIntelEndpoint != "" && c.DocIntelKey != ""
}

// ParseCORSOrigins splits a comma separated origin list. Blank entries are
// dropped and "*" may not be combined with explicit origins.
func ParseCORSOrigins(raw string) ([]string, error) {
	origins := []string{}
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) > 1 {
		for _, o := range origins {
			if o == "*" {
				return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot mix '*' with specific origins")
			}
		}
	}
	return origins, nil
}

// ParseRateLimit parses expressions like "20/minute" into a request count and window.
func ParseRateLimit(expr string) (int, time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(expr), "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid rate limit %q: expected N/unit", expr)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid rate limit count in %q", expr)
	}

	var window time.Duration
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(parts[1])), "s") {
	case "second", "sec":
		window = time.Second
	case "minute", "min":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate limit unit in %q", expr)
	}
	return n, window, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
