package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	ExtractionDuration  metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
	RetrievalResults    metric.Int64Histogram
	SessionCleanups     metric.Int64Counter
	IndexedChunks       metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics(serviceName string) (*Metrics, error) {
	meter := otel.Meter(serviceName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"llm.tokens.used",
		metric.WithDescription("Prompt and completion tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	extractionDuration, err := meter.Float64Histogram(
		"document.extraction.duration",
		metric.WithDescription("Upload text extraction duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	retrievalResults, err := meter.Int64Histogram(
		"retrieval.results",
		metric.WithDescription("Company document chunks returned per search"),
	)
	if err != nil {
		return nil, err
	}

	sessionCleanups, err := meter.Int64Counter(
		"session.cleanups.total",
		metric.WithDescription("Session cleanup calls"),
	)
	if err != nil {
		return nil, err
	}

	indexedChunks, err := meter.Int64Counter(
		"index.chunks.uploaded",
		metric.WithDescription("Chunks uploaded to the search index"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		ExtractionDuration:  extractionDuration,
		CircuitBreakerState: circuitBreakerState,
		RetrievalResults:    retrievalResults,
		SessionCleanups:     sessionCleanups,
		IndexedChunks:       indexedChunks,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records LLM token usage by kind ("prompt" or "completion")
func (m *Metrics) RecordTokensUsed(tokens int64, model, kind string) {
	if m == nil || tokens <= 0 {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("llm.model", model),
		attribute.String("llm.token_kind", kind),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordExtraction records upload extraction metrics
func (m *Metrics) RecordExtraction(duration float64, method, status string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("extraction.method", method),
		attribute.String("extraction.status", status),
	}

	m.ExtractionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordRetrieval records how many chunks a search produced and which path served it
func (m *Metrics) RecordRetrieval(results int, mode string) {
	if m == nil {
		return
	}
	m.RetrievalResults.Record(context.Background(), int64(results),
		metric.WithAttributes(attribute.String("retrieval.mode", mode)))
}

// RecordSessionCleanup records a cleanup and whether a session was found
func (m *Metrics) RecordSessionCleanup(found bool) {
	if m == nil {
		return
	}
	m.SessionCleanups.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("session.found", found)))
}

// RecordIndexedChunks records chunks written by the reindex job
func (m *Metrics) RecordIndexedChunks(n int, success bool) {
	if m == nil || n == 0 {
		return
	}
	m.IndexedChunks.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.Bool("index.success", success)))
}
