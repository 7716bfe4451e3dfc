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

package rag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/history"
	"github.com/kadirpekel/vectra/pkg/llms"
	"github.com/kadirpekel/vectra/pkg/loader"
	"github.com/kadirpekel/vectra/pkg/observability"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// Engine orchestrates the full pipeline: ingestion on one side,
// question answering on the other. Construct it with New; the zero
// value is not usable.
type Engine struct {
	cfg *config.Config

	backend   llms.Backend // embeddings plus default generation
	generator llms.Backend // answer synthesis

	store   vector.Store
	loaders *loader.Registry
	history history.Store        // nil when memory is disabled
	window  *history.TokenWindow // nil without a history token budget

	processor *Processor
	enricher  *Enricher // nil when enrichment is disabled
	rewriter  *Rewriter
	retriever *Retriever
	reranker  *Reranker // nil when reranking is disabled
	planner   *Planner
	grounder  *Grounder // nil when grounding is disabled

	cache     *EmbeddingCache
	retryer   *Retryer
	callbacks Callbacks
	tracer    trace.Tracer
}

// Option overrides a dependency before the config-driven factories
// fill the gaps. Used to inject test doubles and shared instances.
type Option func(*Engine)

// WithBackend sets the language backend for embeddings and, unless
// overridden, generation.
func WithBackend(b llms.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithGenerator sets the answer-synthesis backend separately from the
// embedding backend.
func WithGenerator(b llms.Backend) Option {
	return func(e *Engine) { e.generator = b }
}

// WithStore sets the vector store.
func WithStore(s vector.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithHistory sets the conversation history store.
func WithHistory(h history.Store) Option {
	return func(e *Engine) { e.history = h }
}

// WithLoaders sets the document loader registry.
func WithLoaders(r *loader.Registry) Option {
	return func(e *Engine) { e.loaders = r }
}

// WithCallbacks installs progress callbacks.
func WithCallbacks(c Callbacks) Option {
	return func(e *Engine) { e.callbacks = c }
}

// New builds an engine from configuration. Options run first; any
// dependency still nil afterwards is constructed from the config, so
// injected doubles suppress the corresponding factory entirely.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.SetDefaults()

	e := &Engine{
		cfg:    cfg,
		cache:  NewEmbeddingCache(),
		tracer: observability.Tracer("vectra/rag"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.backend == nil {
		backend, err := llms.New(&cfg.LLM, &cfg.Embedding)
		if err != nil {
			return nil, err
		}
		e.backend = backend
	}
	if e.generator == nil {
		e.generator = e.backend
	}
	if e.loaders == nil {
		e.loaders = loader.NewRegistry()
	}
	if e.store == nil {
		store, err := vector.New(&cfg.Database, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		e.store = store
	}
	if e.history == nil && cfg.Memory.Enabled {
		h, err := history.New(&cfg.Memory)
		if err != nil {
			return nil, err
		}
		e.history = h
	}
	if cfg.Memory.Enabled && cfg.Memory.TokenBudget > 0 {
		e.window = history.NewTokenWindow(cfg.LLM.Model, cfg.Memory.TokenBudget)
	}

	// Stage backends fall back to the main generator unless the
	// config names an override for the stage.
	stageBackend := func(override *config.LLMConfig) (llms.Backend, error) {
		if override == nil {
			return e.generator, nil
		}
		return llms.NewGenerator(override)
	}

	agenticLLM, err := stageBackend(cfg.Chunking.AgenticLLM)
	if err != nil {
		return nil, err
	}
	rewriteLLM, err := stageBackend(cfg.Retrieval.LLM)
	if err != nil {
		return nil, err
	}
	rerankLLM, err := stageBackend(cfg.Reranking.LLM)
	if err != nil {
		return nil, err
	}
	enrichLLM, err := stageBackend(cfg.Metadata.LLM)
	if err != nil {
		return nil, err
	}

	e.processor = NewProcessor(cfg.Chunking, agenticLLM)
	if cfg.Metadata.Enrichment {
		e.enricher = NewEnricher(enrichLLM)
	}
	e.rewriter = NewRewriter(rewriteLLM)

	k := cfg.Retrieval.TopK
	if cfg.Reranking.Enabled {
		k = cfg.Reranking.WindowSize
	}
	e.retriever = NewRetriever(cfg.Retrieval, k, e.backend, e.rewriter, e.store)
	if cfg.Reranking.Enabled {
		e.reranker = NewReranker(rerankLLM, cfg.Reranking.TopN)
	}
	e.planner = NewPlanner(cfg.QueryPlanning)
	if cfg.Grounding.Enabled {
		e.grounder = NewGrounder(cfg.Grounding)
	}
	e.retryer = NewRetryer(cfg.Ingestion.Retry)

	return e, nil
}

// Close releases the engine's storage resources.
func (e *Engine) Close() error {
	var errs []error
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if e.history != nil {
		errs = append(errs, e.history.Close())
	}
	return errors.Join(errs...)
}

// QueryOptions tunes a single query.
type QueryOptions struct {
	// SessionID keys conversation history. Leave empty to answer
	// without history even when memory is enabled.
	SessionID string

	// Filter restricts retrieval to documents whose metadata matches
	// every entry.
	Filter map[string]any
}

// preparedQuery is the pipeline output up to the generation stage.
type preparedQuery struct {
	prompt string
	docs   []RetrievedDoc
}

// Query answers a question and returns the answer with its sources.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (*QueryResult, error) {
	strategy := e.cfg.Retrieval.Strategy

	result, err := e.answer(ctx, question, opts)
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordQuery(ctx, strategy, err)
	}
	if err != nil {
		e.callbacks.errorf(err)
		return nil, err
	}
	return result, nil
}

func (e *Engine) answer(ctx context.Context, question string, opts QueryOptions) (*QueryResult, error) {
	prep, err := e.prepare(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	e.callbacks.generationStart(question)
	slog.Debug("Query state", "state", StateGenerating)
	var answer string
	err = e.stage(ctx, StateGenerating, func(ctx context.Context) error {
		var genErr error
		answer, genErr = e.generator.Generate(ctx, prep.prompt, systemInstruction)
		return genErr
	})
	if err != nil {
		slog.Debug("Query state", "state", StateFailed)
		return nil, err
	}
	e.callbacks.generationEnd(answer)

	e.persistExchange(ctx, opts.SessionID, question, answer)
	slog.Debug("Query state", "state", StateDone)

	result := &QueryResult{
		Answer:  e.formatAnswer(answer),
		Sources: sourcesOf(prep.docs),
	}
	slog.Debug("Query answered",
		"strategy", e.cfg.Retrieval.Strategy,
		"sources", len(result.Sources),
		"answer_length", len(result.Answer))
	return result, nil
}

// QueryStream answers a question incrementally. The returned channel
// carries the backend's chunks unchanged and is closed when the
// stream ends; history and end-of-generation callbacks fire only for
// streams that complete without error or cancellation.
func (e *Engine) QueryStream(ctx context.Context, question string, opts QueryOptions) (<-chan llms.StreamChunk, error) {
	strategy := e.cfg.Retrieval.Strategy

	prep, err := e.prepare(ctx, question, opts)
	if err != nil {
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordQuery(ctx, strategy, err)
		}
		e.callbacks.errorf(err)
		return nil, err
	}

	e.callbacks.generationStart(question)
	slog.Debug("Query state", "state", StateGenerating)
	inner, err := e.generator.GenerateStream(ctx, prep.prompt, systemInstruction)
	if err != nil {
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordQuery(ctx, strategy, err)
		}
		e.callbacks.errorf(err)
		return nil, err
	}

	out := make(chan llms.StreamChunk, 100)
	go func() {
		defer close(out)

		var full strings.Builder
		var streamErr error
		for chunk := range inner {
			if chunk.Err != nil {
				streamErr = chunk.Err
				e.callbacks.errorf(chunk.Err)
			} else {
				full.WriteString(chunk.Delta)
				if chunk.Usage != nil {
					if m := observability.GetGlobalMetrics(); m != nil {
						m.RecordGenerationUsage(ctx, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
					}
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				if m := observability.GetGlobalMetrics(); m != nil {
					m.RecordQuery(ctx, strategy, ctx.Err())
				}
				return
			}
		}

		if streamErr == nil {
			streamErr = ctx.Err()
		}
		if streamErr != nil {
			slog.Debug("Query state", "state", StateFailed)
			if m := observability.GetGlobalMetrics(); m != nil {
				m.RecordQuery(ctx, strategy, streamErr)
			}
			return
		}

		answer := full.String()
		e.callbacks.generationEnd(answer)
		e.persistExchange(ctx, opts.SessionID, question, answer)
		slog.Debug("Query state", "state", StateDone)
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordQuery(ctx, strategy, nil)
		}
	}()

	return out, nil
}

// prepare runs retrieval, reranking, planning and grounding, then
// assembles the generation prompt. State advances strictly forward;
// a context error at any point aborts the remaining stages.
func (e *Engine) prepare(ctx context.Context, question string, opts QueryOptions) (*preparedQuery, error) {
	state := StatePending
	advance := func(next QueryState) {
		state = next
		slog.Debug("Query state", "state", state)
	}

	advance(StateRetrieving)
	e.callbacks.retrievalStart(question)
	usesRewriter := e.cfg.Retrieval.Strategy == config.RetrievalHyDE ||
		e.cfg.Retrieval.Strategy == config.RetrievalMultiQuery
	if usesRewriter {
		advance(StateRewriting)
	}

	var docs []RetrievedDoc
	err := e.stage(ctx, StateRetrieving, func(ctx context.Context) error {
		var retErr error
		docs, retErr = e.retriever.Retrieve(ctx, question, opts.Filter)
		return retErr
	})
	if err != nil {
		advance(StateFailed)
		return nil, err
	}
	e.callbacks.retrievalEnd(len(docs))
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordRetrieval(ctx, len(docs))
	}

	if e.reranker != nil {
		advance(StateReranking)
		e.callbacks.rerankingStart(len(docs))
		err = e.stage(ctx, StateReranking, func(ctx context.Context) error {
			var rerankErr error
			docs, rerankErr = e.reranker.Rerank(ctx, question, docs)
			return rerankErr
		})
		if err != nil {
			advance(StateFailed)
			return nil, err
		}
		e.callbacks.rerankingEnd(len(docs))
	}

	if err := ctx.Err(); err != nil {
		advance(StateFailed)
		return nil, err
	}

	advance(StatePlanning)
	parts := e.planner.Plan(docs)

	if e.grounder != nil {
		advance(StateGrounding)
		parts = e.grounder.Apply(question, parts, docs)
	}

	messages := e.recallHistory(ctx, opts.SessionID)

	prompt := buildPrompt(e.cfg.Prompts.Query, question, parts, messages)
	if e.cfg.Generation.OutputFormat == config.OutputJSON {
		prompt += "\n\nRespond with a single valid JSON object."
	}

	if err := ctx.Err(); err != nil {
		advance(StateFailed)
		return nil, err
	}

	return &preparedQuery{prompt: prompt, docs: docs}, nil
}

// recallHistory loads the trailing conversation window. Failures
// degrade to an empty history rather than failing the query.
func (e *Engine) recallHistory(ctx context.Context, sessionID string) []history.ChatMessage {
	if e.history == nil || sessionID == "" {
		return nil
	}
	messages, err := e.history.GetRecent(ctx, sessionID, e.cfg.Memory.MaxMessages)
	if err != nil {
		slog.Warn("Failed to load conversation history", "session", sessionID, "error", err)
		return nil
	}
	if e.window != nil {
		messages = e.window.Trim(messages)
	}
	return messages
}

// persistExchange records the question and answer. A cancelled query
// leaves history untouched; storage failures are logged, not raised,
// because the answer already exists.
func (e *Engine) persistExchange(ctx context.Context, sessionID, question, answer string) {
	if e.history == nil || sessionID == "" || ctx.Err() != nil {
		return
	}
	if err := e.history.AddMessage(ctx, sessionID, history.RoleUser, question); err != nil {
		slog.Warn("Failed to persist user message", "session", sessionID, "error", err)
		return
	}
	if err := e.history.AddMessage(ctx, sessionID, history.RoleAssistant, answer); err != nil {
		slog.Warn("Failed to persist assistant message", "session", sessionID, "error", err)
	}
}

// formatAnswer normalizes the answer for the configured output
// format. In JSON mode a parseable answer is re-encoded compactly;
// anything unparseable is returned as-is.
func (e *Engine) formatAnswer(answer string) string {
	if e.cfg.Generation.OutputFormat != config.OutputJSON {
		return answer
	}

	trimmed := strings.TrimSpace(answer)
	start := strings.IndexAny(trimmed, "{[")
	if start == -1 {
		return answer
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed[start:]), &parsed); err != nil {
		return answer
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return answer
	}
	return string(normalized)
}

// stage wraps a pipeline step with tracing and latency metrics.
func (e *Engine) stage(ctx context.Context, state QueryState, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, string(state))
	defer span.End()

	start := time.Now()
	defer func() {
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordStage(ctx, string(state), time.Since(start))
		}
	}()

	return fn(ctx)
}

func sourcesOf(docs []RetrievedDoc) []map[string]any {
	sources := make([]map[string]any, len(docs))
	for i, doc := range docs {
		sources[i] = doc.Metadata
	}
	return sources
}
