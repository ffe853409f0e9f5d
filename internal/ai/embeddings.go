package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	googleoption "google.golang.org/api/option"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/logger"
)

// MaxEmbeddingInputChars bounds the text sent for a single embedding.
const MaxEmbeddingInputChars = 32000

// EmbeddingBackend produces raw vectors for a batch of texts.
type EmbeddingBackend interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder never fails: after retries are exhausted it returns a zero vector
// so that retrieval can still fall back to keyword matching.
type Embedder struct {
	backend    EmbeddingBackend
	dimensions int

	retryInitial time.Duration
	retryMax     time.Duration
	maxTries     uint
}

func NewEmbedder(backend EmbeddingBackend, dimensions int) *Embedder {
	return &Embedder{
		backend:      backend,
		dimensions:   dimensions,
		retryInitial: 2 * time.Second,
		retryMax:     30 * time.Second,
		maxTries:     3,
	}
}

// NewEmbedderFromConfig picks the embedding backend for the configured provider.
func NewEmbedderFromConfig(ctx context.Context, cfg *config.Config, httpClient *http.Client) (*Embedder, error) {
	switch cfg.LLMProvider {
	case config.ProviderAzureOpenAI, "":
		key := cfg.EmbeddingKey
		if key == "" {
			key = cfg.AzureOpenAIKey
		}
		backend := NewAzureEmbeddingBackend(cfg.EmbeddingEndpoint, key, cfg.EmbeddingAPIVersion, cfg.EmbeddingDeployment, cfg.EmbeddingDimensions, httpClient)
		return NewEmbedder(backend, cfg.EmbeddingDimensions), nil
	case config.ProviderGemini:
		backend, err := NewGeminiEmbeddingBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel)
		if err != nil {
			return nil, err
		}
		return NewEmbedder(backend, cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.LLMProvider)
	}
}

func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed returns the vector for text, or a zero vector on failure.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	vectors := e.embedWithRetry(ctx, []string{text})
	return vectors[0]
}

// EmbedBatch embeds texts in groups of batchSize. Failed groups yield zero vectors.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) [][]float32 {
	if batchSize <= 0 {
		batchSize = 16
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, e.embedWithRetry(ctx, texts[start:end])...)
	}
	return out
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) [][]float32 {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = truncateRunes(t, MaxEmbeddingInputChars)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxInterval = e.retryMax

	vectors, err := backoff.Retry(ctx, func() ([][]float32, error) {
		v, err := e.backend.EmbedTexts(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(v) != len(inputs) {
			return nil, backoff.Permanent(fmt.Errorf("embedding count mismatch: got %d want %d", len(v), len(inputs)))
		}
		return v, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.maxTries))
	if err != nil {
		logger.Error("Embedding generation failed, using zero vectors", "texts", len(inputs), "error", err)
		out := make([][]float32, len(inputs))
		for i := range out {
			out[i] = make([]float32, e.dimensions)
		}
		return out
	}

	for _, v := range vectors {
		if len(v) != e.dimensions {
			logger.Warn("Embedding dimension mismatch", "got", len(v), "expected", e.dimensions)
			break
		}
	}
	return vectors
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// AzureEmbeddingBackend calls an Azure OpenAI embedding deployment.
type AzureEmbeddingBackend struct {
	client     openai.Client
	deployment string
	dimensions int
}

func NewAzureEmbeddingBackend(endpoint, apiKey, apiVersion, deployment string, dimensions int, httpClient *http.Client) *AzureEmbeddingBackend {
	opts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AzureEmbeddingBackend{
		client:     openai.NewClient(opts...),
		deployment: deployment,
		dimensions: dimensions,
	}
}

func (a *AzureEmbeddingBackend) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(a.deployment),
		Dimensions: openai.Int(int64(a.dimensions)),
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if int(d.Index) >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return out, nil
}

// GeminiEmbeddingBackend uses the Google embedding model.
type GeminiEmbeddingBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbeddingBackend(ctx context.Context, apiKey, model string) (*GeminiEmbeddingBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbeddingBackend{client: client, model: model}, nil
}

func (g *GeminiEmbeddingBackend) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("no embedding returned")
		}
		out = append(out, e.Values)
	}
	return out, nil
}

func (g *GeminiEmbeddingBackend) Close() error {
	return g.client.Close()
}
