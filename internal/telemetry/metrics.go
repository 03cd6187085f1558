package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	CompletionTokensUsed metric.Int64Counter
	CompletionDuration   metric.Float64Histogram
	IngestionDuration    metric.Float64Histogram
	ChunksEmbedded       metric.Int64Counter
	RetrievalDuration    metric.Float64Histogram
	ContextChunksUsed    metric.Int64Counter
	CircuitBreakerState  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("oraculo-bot")

	completionTokensUsed, err := meter.Int64Counter(
		"openrouter.tokens.used",
		metric.WithDescription("Total completion tokens used"),
	)
	if err != nil {
		return nil, err
	}

	completionDuration, err := meter.Float64Histogram(
		"openrouter.request.duration",
		metric.WithDescription("Chat completion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"document.ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksEmbedded, err := meter.Int64Counter(
		"document.chunks.embedded",
		metric.WithDescription("Total chunks embedded and stored"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"rag.retrieval.duration",
		metric.WithDescription("Context retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	contextChunksUsed, err := meter.Int64Counter(
		"rag.context.chunks",
		metric.WithDescription("Chunks included in retrieved contexts"),
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

	return &Metrics{
		CompletionTokensUsed: completionTokensUsed,
		CompletionDuration:   completionDuration,
		IngestionDuration:    ingestionDuration,
		ChunksEmbedded:       chunksEmbedded,
		RetrievalDuration:    retrievalDuration,
		ContextChunksUsed:    contextChunksUsed,
		CircuitBreakerState:  circuitBreakerState,
	}, nil
}

// RecordCompletion records one chat completion call.
func (m *Metrics) RecordCompletion(model string, tokens int64, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("openrouter.model", model),
	}

	m.CompletionTokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
	m.CompletionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngestion records one document ingestion.
func (m *Metrics) RecordIngestion(status string, chunks int64, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("ingestion.status", status),
	}

	m.IngestionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if chunks > 0 {
		m.ChunksEmbedded.Add(context.Background(), chunks, metric.WithAttributes(attrs...))
	}
}

// RecordRetrieval records one context retrieval.
func (m *Metrics) RecordRetrieval(chunks int64, duration float64) {
	m.RetrievalDuration.Record(context.Background(), duration)
	m.ContextChunksUsed.Add(context.Background(), chunks)
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
