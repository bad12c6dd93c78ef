package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce             sync.Once
	reasoningCalls          otelmetric.Int64Counter
	reasoningLatency        otelmetric.Float64Histogram
	classificationOutcomes  otelmetric.Int64Counter
	searchRequests          otelmetric.Int64Counter
	searchResults           otelmetric.Int64Histogram
	ingestChunks            otelmetric.Int64Counter
	aggregationEntriesTotal otelmetric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("sopguard/pipeline")
	var err error
	reasoningCalls, err = meter.Int64Counter(
		"reasoning_calls_total",
		otelmetric.WithDescription("Calls made to the reasoning service by outcome"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: reasoning_calls_total: %v", err)
	}
	reasoningLatency, err = meter.Float64Histogram(
		"reasoning_latency_seconds",
		otelmetric.WithDescription("Latency of reasoning service calls"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: reasoning_latency_seconds: %v", err)
	}
	classificationOutcomes, err = meter.Int64Counter(
		"classification_total",
		otelmetric.WithDescription("Incident classifications by result (parsed or fallback)"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: classification_total: %v", err)
	}
	searchRequests, err = meter.Int64Counter(
		"search_requests_total",
		otelmetric.WithDescription("Similarity searches by namespace"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: search_requests_total: %v", err)
	}
	searchResults, err = meter.Int64Histogram(
		"search_results",
		otelmetric.WithDescription("Results returned per similarity search"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: search_results: %v", err)
	}
	ingestChunks, err = meter.Int64Counter(
		"ingest_chunks_total",
		otelmetric.WithDescription("Chunks written or skipped during ingest"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: ingest_chunks_total: %v", err)
	}
	aggregationEntriesTotal, err = meter.Int64Counter(
		"aggregation_entries_total",
		otelmetric.WithDescription("Aggregation entries kept or dropped per procedure"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: aggregation_entries_total: %v", err)
	}
}

// RecordReasoningCall counts one reasoning call and its latency.
func RecordReasoningCall(ctx context.Context, outcome string, d time.Duration) {
	metricsOnce.Do(initMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if reasoningCalls != nil {
		reasoningCalls.Add(contextOrBackground(ctx), 1, attrs)
	}
	if reasoningLatency != nil {
		reasoningLatency.Record(contextOrBackground(ctx), d.Seconds(), attrs)
	}
}

// RecordClassification counts a classification that was parsed or fell back.
func RecordClassification(ctx context.Context, parsed bool) {
	metricsOnce.Do(initMetrics)
	if classificationOutcomes == nil {
		return
	}
	result := "fallback"
	if parsed {
		result = "parsed"
	}
	classificationOutcomes.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(attribute.String("result", result)))
}

// RecordSearch counts a search and how many results it returned.
func RecordSearch(ctx context.Context, namespace string, results int) {
	metricsOnce.Do(initMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("namespace", namespace))
	if searchRequests != nil {
		searchRequests.Add(contextOrBackground(ctx), 1, attrs)
	}
	if searchResults != nil {
		searchResults.Record(contextOrBackground(ctx), int64(results), attrs)
	}
}

// RecordIngest counts chunks per namespace and outcome (stored, skipped).
func RecordIngest(ctx context.Context, namespace, outcome string, n int) {
	metricsOnce.Do(initMetrics)
	if ingestChunks == nil || n == 0 {
		return
	}
	ingestChunks.Add(contextOrBackground(ctx), int64(n), otelmetric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("outcome", outcome),
	))
}

// RecordAggregation counts entries an aggregation procedure kept or dropped.
func RecordAggregation(ctx context.Context, procedure, outcome string) {
	metricsOnce.Do(initMetrics)
	if aggregationEntriesTotal == nil {
		return
	}
	aggregationEntriesTotal.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(
		attribute.String("procedure", procedure),
		attribute.String("outcome", outcome),
	))
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
