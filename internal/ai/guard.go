package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/telemetry"
)

// GuardedLLM throttles calls with a token bucket and stops calling a failing
// provider through a circuit breaker.
type GuardedLLM struct {
	name     string
	provider LLM
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	metrics  *telemetry.Metrics
}

func NewGuardedLLM(name string, provider LLM, requestsPerSecond float64, burst int, metrics *telemetry.Metrics) *GuardedLLM {
	g := &GuardedLLM{
		name:     name,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		metrics:  metrics,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			g.metrics.RecordCircuitBreakerState(name, to.String())
		},
	})
	return g
}

// State exposes the breaker state for health reporting.
func (g *GuardedLLM) State() string {
	return g.breaker.State().String()
}

func (g *GuardedLLM) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "llm.complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.provider", g.name),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.estimated_tokens", estimateTokens(messages)),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("llm.rate_limited", true))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.provider.Complete(ctx, messages)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("llm.circuit_breaker_open", true))
			span.SetStatus(codes.Error, "circuit open")
			return nil, ErrProviderUnavailable
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	completion := result.(*Completion)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", completion.PromptTokens),
		attribute.Int("llm.completion_tokens", completion.CompletionTokens),
	)
	g.metrics.RecordTokensUsed(int64(completion.PromptTokens), completion.Model, "prompt")
	g.metrics.RecordTokensUsed(int64(completion.CompletionTokens), completion.Model, "completion")
	return completion, nil
}
