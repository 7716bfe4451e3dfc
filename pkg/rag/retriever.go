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
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/llms"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// rrfMultiQueryC is the RRF constant for fusing multi-query result
// lists. The small value biases aggressively toward top ranks and is
// part of the retrieval contract.
const rrfMultiQueryC = 1.0

// Retriever fetches candidate documents from the vector store using
// the configured strategy, then promotes keyword matches.
type Retriever struct {
	cfg      config.RetrievalConfig
	k        int
	embedder llms.Backend
	rewriter *Rewriter
	store    vector.Store
}

// NewRetriever creates a retriever. k is the number of candidates the
// downstream pipeline expects: the reranker window when reranking is
// enabled, top_k otherwise.
func NewRetriever(cfg config.RetrievalConfig, k int, embedder llms.Backend, rewriter *Rewriter, store vector.Store) *Retriever {
	cfg.SetDefaults()
	if k <= 0 {
		k = cfg.TopK
	}
	return &Retriever{
		cfg:      cfg,
		k:        k,
		embedder: embedder,
		rewriter: rewriter,
		store:    store,
	}
}

// Retrieve runs the configured strategy and returns candidates in
// ranked order.
func (r *Retriever) Retrieve(ctx context.Context, query string, filter map[string]any) ([]RetrievedDoc, error) {
	var (
		docs []RetrievedDoc
		err  error
	)

	switch r.cfg.Strategy {
	case config.RetrievalHyDE:
		docs, err = r.hyde(ctx, query, filter)
	case config.RetrievalMultiQuery:
		docs, err = r.multiQuery(ctx, query, filter)
	case config.RetrievalHybrid:
		docs, err = r.hybrid(ctx, query, filter)
	case config.RetrievalMMR:
		docs, err = r.mmr(ctx, query, filter)
	default:
		docs, err = r.naive(ctx, query, filter)
	}
	if err != nil {
		return nil, err
	}

	return boostByKeywords(query, docs), nil
}

func (r *Retriever) naive(ctx context.Context, query string, filter map[string]any) ([]RetrievedDoc, error) {
	return r.searchText(ctx, query, r.k, filter)
}

// hyde searches with the embedding of a generated passage instead of
// the query's. When generation fails the raw query takes its place.
func (r *Retriever) hyde(ctx context.Context, query string, filter map[string]any) ([]RetrievedDoc, error) {
	text := query
	passage, err := r.rewriter.HypotheticalDocument(ctx, query)
	switch {
	case err == nil:
		text = passage
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		slog.Warn("HyDE generation failed, searching with the raw query", "error", err)
	}
	return r.searchText(ctx, text, r.k, filter)
}

// multiQuery searches every rewritten query in parallel and fuses the
// result lists with RRF.
func (r *Retriever) multiQuery(ctx context.Context, query string, filter map[string]any) ([]RetrievedDoc, error) {
	queries, err := r.rewriter.Rewrite(ctx, query)
	if err != nil {
		return nil, err
	}

	lists := make([][]RetrievedDoc, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			docs, err := r.searchText(gctx, q, r.k, filter)
			if err != nil {
				return err
			}
			lists[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := rrfFuse(lists, rrfMultiQueryC)
	if len(fused) > r.k {
		fused = fused[:r.k]
	}
	return fused, nil
}

// hybrid uses backend-native lexical+vector search where the store
// supports it and degrades to plain similarity search elsewhere.
func (r *Retriever) hybrid(ctx context.Context, query string, filter map[string]any) ([]RetrievedDoc, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if hs, ok := r.store.(vector.HybridSearcher); ok {
		results, err := hs.HybridSearch(ctx, query, vec, r.k, filter)
		if err != nil {
			return nil, err
		}
		return toRetrieved(results), nil
	}
	results, err := r.store.SimilaritySearch(ctx, vec, r.k, filter)
	if err != nil {
		return nil, err
	}
	return toRetrieved(results), nil
}

// mmr over-fetches a candidate pool, then selects k for relevance
// and novelty.
func (r *Retriever) mmr(ctx context.Context, query string, filter map[string]any) ([]RetrievedDoc, error) {
	pool := r.cfg.MMRFetchK
	if pool < r.k {
		pool = r.k
	}
	candidates, err := r.searchText(ctx, query, pool, filter)
	if err != nil {
		return nil, err
	}
	return mmrSelect(candidates, r.k, r.cfg.MMRLambda), nil
}

// searchText embeds text and runs a similarity search.
func (r *Retriever) searchText(ctx context.Context, text string, k int, filter map[string]any) ([]RetrievedDoc, error) {
	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := r.store.SimilaritySearch(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}
	return toRetrieved(results), nil
}

func toRetrieved(results []vector.SearchResult) []RetrievedDoc {
	docs := make([]RetrievedDoc, len(results))
	for i, res := range results {
		docs[i] = RetrievedDoc{
			Content:  res.Content,
			Metadata: res.Metadata,
			Score:    float64(res.Score),
		}
	}
	return docs
}
