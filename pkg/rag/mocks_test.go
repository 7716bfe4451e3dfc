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
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/vectra/pkg/history"
	"github.com/kadirpekel/vectra/pkg/llms"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// mockBackend scripts embedding and generation responses and records
// calls. Embeddings are deterministic hashes of the input text so
// equal texts always embed identically.
type mockBackend struct {
	mu sync.Mutex

	dim        int
	embedErr   error
	embedCalls int      // EmbedDocuments invocations
	queryCalls int      // EmbedQuery invocations
	embedded   []string // every text embedded, in call order

	generateFn    func(prompt, system string) (string, error)
	replies       []string // consumed per call; the last one repeats
	generateErr   error
	generateCalls int
	prompts       []string

	streamChunks []llms.StreamChunk
	streamErr    error
}

func newMockBackend() *mockBackend {
	return &mockBackend{dim: 4}
}

func (m *mockBackend) vectorFor(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, m.dim)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255
	}
	return vec
}

func (m *mockBackend) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		m.embedded = append(m.embedded, t)
		out[i] = m.vectorFor(t)
	}
	return out, nil
}

func (m *mockBackend) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	m.embedded = append(m.embedded, text)
	return m.vectorFor(text), nil
}

func (m *mockBackend) Generate(_ context.Context, prompt, system string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateCalls++
	m.prompts = append(m.prompts, prompt)
	if m.generateFn != nil {
		return m.generateFn(prompt, system)
	}
	if m.generateErr != nil {
		return "", m.generateErr
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	idx := m.generateCalls - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}

func (m *mockBackend) GenerateStream(_ context.Context, prompt, _ string) (<-chan llms.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateCalls++
	m.prompts = append(m.prompts, prompt)
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	out := make(chan llms.StreamChunk, len(m.streamChunks))
	for _, chunk := range m.streamChunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

// mockStore implements the base Store contract only, so capability
// detection by type assertion sees none of the optional interfaces.
type mockStore struct {
	mu sync.Mutex

	added       []vector.Document
	addCalls    int
	addErr      error
	addFailFor  string // AddDocuments fails when any doc content contains this
	results     []vector.SearchResult
	searchErr   error
	searchCalls int
	lastK       int
	lastFilter  map[string]any
	closed      bool
}

func (m *mockStore) AddDocuments(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.addErr != nil {
		return m.addErr
	}
	if m.addFailFor != "" {
		for _, doc := range docs {
			if strings.Contains(doc.Content, m.addFailFor) {
				return errAddRejected
			}
		}
	}
	m.added = append(m.added, docs...)
	return nil
}

func (m *mockStore) SimilaritySearch(_ context.Context, _ []float32, k int, filter map[string]any) ([]vector.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	m.lastK = k
	m.lastFilter = filter
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// mockFullStore adds every optional capability on top of mockStore.
type mockFullStore struct {
	mockStore

	upserted    []vector.Document
	upsertCalls int
	upsertErr   error

	exists      bool
	existsErr   error
	existsCalls int

	deleteFilters []map[string]any
	deleteIDs     []string
	deleteErr     error

	ensureCalls int
	ensureErr   error

	hybridCalls   int
	hybridResults []vector.SearchResult
}

func (m *mockFullStore) UpsertDocuments(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, docs...)
	return nil
}

func (m *mockFullStore) FileExists(_ context.Context, _ string, _ int64, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	return m.exists, m.existsErr
}

func (m *mockFullStore) DeleteByID(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteIDs = append(m.deleteIDs, ids...)
	return m.deleteErr
}

func (m *mockFullStore) DeleteByFilter(_ context.Context, filter map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleteFilters = append(m.deleteFilters, filter)
	return nil
}

func (m *mockFullStore) EnsureIndexes(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	return m.ensureErr
}

func (m *mockFullStore) HybridSearch(_ context.Context, _ string, _ []float32, k int, filter map[string]any) ([]vector.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hybridCalls++
	m.lastK = k
	m.lastFilter = filter
	return m.hybridResults, nil
}

// mockHistory is an in-memory history store that can be primed to
// fail.
type mockHistory struct {
	mu       sync.Mutex
	messages []history.ChatMessage
	addErr   error
	getErr   error
	closed   bool
}

func (m *mockHistory) AddMessage(_ context.Context, sessionID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.messages = append(m.messages, history.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *mockHistory) GetRecent(_ context.Context, sessionID string, n int) ([]history.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []history.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (m *mockHistory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockHistory) all() []history.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

var errAddRejected = &vector.StoreError{Store: "mock", Op: "add", Err: errors.New("document rejected")}
