// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds the Prometheus-backed metrics recorder. When
// metrics are disabled it returns an inert recorder, so callers record
// unconditionally either way.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("vectra")

	documentsIngested, err := meter.Int64Counter(
		"vectra_documents_ingested_total",
		metric.WithDescription("Total number of files ingested"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents counter: %w", err)
	}

	chunksIndexed, err := meter.Int64Counter(
		"vectra_chunks_indexed_total",
		metric.WithDescription("Total number of chunks written to the vector store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunks counter: %w", err)
	}

	embeddingRequests, err := meter.Int64Counter(
		"vectra_embedding_requests_total",
		metric.WithDescription("Total number of embedding batch requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding requests counter: %w", err)
	}

	embeddingCacheHits, err := meter.Int64Counter(
		"vectra_embedding_cache_hits_total",
		metric.WithDescription("Total number of embedding cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	embeddingCacheMisses, err := meter.Int64Counter(
		"vectra_embedding_cache_misses_total",
		metric.WithDescription("Total number of embedding cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	queriesTotal, err := meter.Int64Counter(
		"vectra_queries_total",
		metric.WithDescription("Total number of queries answered"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queries counter: %w", err)
	}

	retrievedDocuments, err := meter.Float64Histogram(
		"vectra_retrieved_documents",
		metric.WithDescription("Number of documents retrieved per query"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 20, 50),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieved documents histogram: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"vectra_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	generationTokens, err := meter.Int64Counter(
		"vectra_generation_tokens_total",
		metric.WithDescription("Total tokens consumed by generation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation tokens counter: %w", err)
	}

	return NewPrometheusMetrics(
		documentsIngested,
		chunksIndexed,
		embeddingRequests,
		embeddingCacheHits,
		embeddingCacheMisses,
		queriesTotal,
		retrievedDocuments,
		stageDuration,
		generationTokens,
	), nil
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
