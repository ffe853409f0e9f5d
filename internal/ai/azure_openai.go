package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"property-chatbot-api/internal/logger"
)

// AzureOpenAIProvider calls an Azure OpenAI chat deployment. Rate limit and
// connection failures are retried with exponential backoff.
type AzureOpenAIProvider struct {
	client     openai.Client
	deployment string
	timeout    time.Duration

	retryInitial time.Duration
	retryMax     time.Duration
	maxTries     uint
}

func NewAzureOpenAIProvider(endpoint, apiKey, apiVersion, deployment string, timeout time.Duration, httpClient *http.Client, opts ...option.RequestOption) *AzureOpenAIProvider {
	reqOpts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	}
	reqOpts = append(reqOpts, opts...)

	return &AzureOpenAIProvider{
		client:       openai.NewClient(reqOpts...),
		deployment:   deployment,
		timeout:      timeout,
		retryInitial: 4 * time.Second,
		retryMax:     60 * time.Second,
		maxTries:     3,
	}
}

func (p *AzureOpenAIProvider) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.deployment),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(DefaultTemperature),
		MaxTokens:   openai.Int(DefaultMaxTokens),
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryInitial
	b.MaxInterval = p.retryMax

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*openai.ChatCompletion, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.Chat.Completions.New(callCtx, params)
		if err == nil {
			return resp, nil
		}
		if isRetryable(err) {
			logger.Warn("Azure OpenAI call failed, retrying", "attempt", attempt, "error", err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.maxTries))
	if err != nil {
		return nil, fmt.Errorf("azure openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("azure openai returned no choices")
	}

	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            p.deployment,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// isRetryable reports rate limiting and connection errors. Other API errors,
// 5xx included, fail on the first attempt.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
