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
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records pipeline events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordIngest(ctx context.Context, status string)
	RecordChunksIndexed(ctx context.Context, count int)
	RecordEmbeddingBatch(ctx context.Context, err error)
	RecordEmbeddingCache(ctx context.Context, hits, misses int)
	RecordQuery(ctx context.Context, strategy string, err error)
	RecordRetrieval(ctx context.Context, documents int)
	RecordStage(ctx context.Context, stage string, duration time.Duration)
	RecordGenerationUsage(ctx context.Context, promptTokens, completionTokens int)
}

// PrometheusMetrics records events through OpenTelemetry instruments
// exported to Prometheus. The zero value records nothing, so it doubles
// as the disabled-metrics recorder.
type PrometheusMetrics struct {
	documentsIngested    metric.Int64Counter
	chunksIndexed        metric.Int64Counter
	embeddingRequests    metric.Int64Counter
	embeddingCacheHits   metric.Int64Counter
	embeddingCacheMisses metric.Int64Counter
	queriesTotal         metric.Int64Counter
	retrievedDocuments   metric.Float64Histogram
	stageDuration        metric.Float64Histogram
	generationTokens     metric.Int64Counter
}

func NewPrometheusMetrics(
	documentsIngested metric.Int64Counter,
	chunksIndexed metric.Int64Counter,
	embeddingRequests metric.Int64Counter,
	embeddingCacheHits metric.Int64Counter,
	embeddingCacheMisses metric.Int64Counter,
	queriesTotal metric.Int64Counter,
	retrievedDocuments metric.Float64Histogram,
	stageDuration metric.Float64Histogram,
	generationTokens metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		documentsIngested:    documentsIngested,
		chunksIndexed:        chunksIndexed,
		embeddingRequests:    embeddingRequests,
		embeddingCacheHits:   embeddingCacheHits,
		embeddingCacheMisses: embeddingCacheMisses,
		queriesTotal:         queriesTotal,
		retrievedDocuments:   retrievedDocuments,
		stageDuration:        stageDuration,
		generationTokens:     generationTokens,
	}
}

// RecordIngest counts one ingested file by outcome: "success", "error"
// or "skipped".
func (m *PrometheusMetrics) RecordIngest(ctx context.Context, status string) {
	if m == nil || m.documentsIngested == nil {
		return
	}
	m.documentsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordChunksIndexed counts chunks written to the vector store.
func (m *PrometheusMetrics) RecordChunksIndexed(ctx context.Context, count int) {
	if m == nil || m.chunksIndexed == nil {
		return
	}
	m.chunksIndexed.Add(ctx, int64(count))
}

// RecordEmbeddingBatch counts one embedding batch request.
func (m *PrometheusMetrics) RecordEmbeddingBatch(ctx context.Context, err error) {
	if m == nil || m.embeddingRequests == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.embeddingRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordEmbeddingCache counts embedding cache hits and misses.
func (m *PrometheusMetrics) RecordEmbeddingCache(ctx context.Context, hits, misses int) {
	if m == nil || m.embeddingCacheHits == nil || m.embeddingCacheMisses == nil {
		return
	}
	m.embeddingCacheHits.Add(ctx, int64(hits))
	m.embeddingCacheMisses.Add(ctx, int64(misses))
}

// RecordQuery counts one answered query by retrieval strategy.
func (m *PrometheusMetrics) RecordQuery(ctx context.Context, strategy string, err error) {
	if m == nil || m.queriesTotal == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	))
}

// RecordRetrieval observes how many documents a query retrieved.
func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, documents int) {
	if m == nil || m.retrievedDocuments == nil {
		return
	}
	m.retrievedDocuments.Record(ctx, float64(documents))
}

// RecordStage observes the latency of one pipeline stage.
func (m *PrometheusMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// RecordGenerationUsage counts tokens consumed by generation.
func (m *PrometheusMetrics) RecordGenerationUsage(ctx context.Context, promptTokens, completionTokens int) {
	if m == nil || m.generationTokens == nil {
		return
	}
	if promptTokens > 0 {
		m.generationTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(
			attribute.String("direction", "prompt"),
		))
	}
	if completionTokens > 0 {
		m.generationTokens.Add(ctx, int64(completionTokens), metric.WithAttributes(
			attribute.String("direction", "completion"),
		))
	}
}

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics recorder, or nil
// when none was installed.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
