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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/vector"
)

func searchHit(content string, score float32, meta map[string]any) vector.SearchResult {
	return vector.SearchResult{
		Document: vector.Document{Content: content, Metadata: meta},
		Score:    score,
	}
}

func TestNewRetrieverDefaultsK(t *testing.T) {
	r := NewRetriever(config.RetrievalConfig{}, 0, newMockBackend(), nil, &mockStore{})
	assert.Equal(t, 5, r.k)
	assert.Equal(t, config.RetrievalNaive, r.cfg.Strategy)
}

func TestRetrieveNaive(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{results: []vector.SearchResult{
		searchHit("first hit", 0.9, map[string]any{"source": "a.md"}),
		searchHit("second hit", 0.7, nil),
	}}
	r := NewRetriever(config.RetrievalConfig{}, 7, backend, nil, store)

	filter := map[string]any{"source": "a.md"}
	docs, err := r.Retrieve(context.Background(), "remote work policy", filter)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "first hit", docs[0].Content)
	assert.InDelta(t, 0.9, docs[0].Score, 1e-6)
	assert.Equal(t, map[string]any{"source": "a.md"}, docs[0].Metadata)

	assert.Equal(t, 1, backend.queryCalls)
	assert.Equal(t, []string{"remote work policy"}, backend.embedded)
	assert.Equal(t, 7, store.lastK)
	assert.Equal(t, filter, store.lastFilter)
}

func TestRetrieveBoostsKeywordMatches(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{results: []vector.SearchResult{
		searchHit("vector geometry winner", 0.9, nil),
		searchHit("keyword match", 0.5, map[string]any{MetaKeywords: []string{"database"}}),
	}}
	r := NewRetriever(config.RetrievalConfig{}, 5, backend, nil, store)

	docs, err := r.Retrieve(context.Background(), "database indexing", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyword match", "vector geometry winner"}, contentsOf(docs))
}

func TestRetrieveHyDE(t *testing.T) {
	backend := newMockBackend()
	backend.replies = []string{"Employees may work remotely two days a week."}
	store := &mockStore{results: []vector.SearchResult{searchHit("policy doc", 0.8, nil)}}
	r := NewRetriever(config.RetrievalConfig{Strategy: config.RetrievalHyDE}, 5,
		backend, NewRewriter(backend), store)

	docs, err := r.Retrieve(context.Background(), "remote work policy", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	// The generated passage is embedded in place of the query.
	assert.Equal(t, []string{"Employees may work remotely two days a week."}, backend.embedded)
	assert.Equal(t, 1, backend.generateCalls)
}

func TestRetrieveHyDEFallsBackToQuery(t *testing.T) {
	backend := newMockBackend()
	backend.generateErr = errors.New("backend down")
	store := &mockStore{results: []vector.SearchResult{searchHit("policy doc", 0.8, nil)}}
	r := NewRetriever(config.RetrievalConfig{Strategy: config.RetrievalHyDE}, 5,
		backend, NewRewriter(backend), store)

	docs, err := r.Retrieve(context.Background(), "remote work policy", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"remote work policy"}, backend.embedded)
}

func TestRetrieveMultiQuery(t *testing.T) {
	backend := newMockBackend()
	backend.generateFn = func(prompt, _ string) (string, error) {
		if strings.Contains(prompt, "3 different ways") {
			return "alt one\nalt two", nil
		}
		return "no array", nil
	}
	store := &mockStore{results: []vector.SearchResult{
		searchHit("top doc", 0.9, nil),
		searchHit("runner up", 0.6, nil),
	}}
	r := NewRetriever(config.RetrievalConfig{Strategy: config.RetrievalMultiQuery}, 1,
		backend, NewRewriter(backend), store)

	docs, err := r.Retrieve(context.Background(), "original query", nil)
	require.NoError(t, err)

	// Three queries searched, fused, cut to k.
	assert.Equal(t, 3, store.searchCalls)
	assert.ElementsMatch(t, []string{"alt one", "alt two", "original query"}, backend.embedded)
	require.Len(t, docs, 1)
	assert.Equal(t, "top doc", docs[0].Content)
}

func TestRetrieveHybridCapableStore(t *testing.T) {
	backend := newMockBackend()
	store := &mockFullStore{hybridResults: []vector.SearchResult{searchHit("hybrid hit", 0.8, nil)}}
	r := NewRetriever(config.RetrievalConfig{Strategy: config.RetrievalHybrid}, 5,
		backend, nil, store)

	docs, err := r.Retrieve(context.Background(), "some query", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, store.hybridCalls)
	assert.Equal(t, 0, store.searchCalls)
	require.Len(t, docs, 1)
	assert.Equal(t, "hybrid hit", docs[0].Content)
}

func TestRetrieveHybridFallsBackToSimilarity(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{results: []vector.SearchResult{searchHit("plain hit", 0.8, nil)}}
	r := NewRetriever(config.RetrievalConfig{Strategy: config.RetrievalHybrid}, 5,
		backend, nil, store)

	docs, err := r.Retrieve(context.Background(), "some query", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.searchCalls)
	require.Len(t, docs, 1)
	assert.Equal(t, "plain hit", docs[0].Content)
}

func TestRetrieveMMR(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{results: []vector.SearchResult{
		searchHit("quantum neural network layers", 1.0, nil),
		searchHit("quantum neural network layers training", 1.0, nil),
		searchHit("quantum training cheese wine travel garden music", 1.0, nil),
	}}
	r := NewRetriever(config.RetrievalConfig{
		Strategy:  config.RetrievalMMR,
		MMRLambda: 0.5,
		MMRFetchK: 10,
	}, 2, backend, nil, store)

	docs, err := r.Retrieve(context.Background(), "quantum layers", nil)
	require.NoError(t, err)

	// The pool over-fetches, then two diverse candidates survive.
	assert.Equal(t, 10, store.lastK)
	assert.Equal(t, []string{
		"quantum neural network layers",
		"quantum training cheese wine travel garden music",
	}, contentsOf(docs))
}

func TestRetrieveMMRPoolAtLeastK(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{}
	r := NewRetriever(config.RetrievalConfig{
		Strategy:  config.RetrievalMMR,
		MMRFetchK: 3,
	}, 8, backend, nil, store)

	_, err := r.Retrieve(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, 8, store.lastK)
}

func TestRetrieveErrors(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{searchErr: errors.New("store down")}
	r := NewRetriever(config.RetrievalConfig{}, 5, backend, nil, store)

	_, err := r.Retrieve(context.Background(), "query", nil)
	assert.ErrorContains(t, err, "store down")

	backend = newMockBackend()
	backend.embedErr = errors.New("embedder down")
	r = NewRetriever(config.RetrievalConfig{}, 5, backend, nil, &mockStore{})

	_, err = r.Retrieve(context.Background(), "query", nil)
	assert.ErrorContains(t, err, "embedder down")
}
