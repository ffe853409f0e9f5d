package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/telemetry"
)

// NewLLMFromConfig builds the configured chat provider behind a breaker and a
// client-side rate limiter. The closer releases the provider's client.
func NewLLMFromConfig(ctx context.Context, cfg *config.Config, httpClient *http.Client, metrics *telemetry.Metrics) (*GuardedLLM, io.Closer, error) {
	var (
		provider LLM
		closer   io.Closer = nopCloser{}
	)
	switch cfg.LLMProvider {
	case config.ProviderAzureOpenAI, "":
		provider = NewAzureOpenAIProvider(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIKey, cfg.AzureOpenAIAPIVersion, cfg.AzureOpenAIDeployment, cfg.RequestTimeout, httpClient)
	case config.ProviderGemini:
		gemini, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		provider, closer = gemini, gemini
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
	return NewGuardedLLM(cfg.LLMProvider, provider, cfg.LLMRequestsPerSecond, cfg.LLMBurst, metrics), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
