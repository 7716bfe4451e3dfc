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

package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kadirpekel/vectra/pkg/config"
)

func TestOllamaProviderEmbedDocuments(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s, want /api/embeddings", r.URL.Path)
		}
		calls.Add(1)

		var req OllamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %s", req.Model)
		}
		if req.Prompt == "" {
			t.Error("empty prompt")
		}

		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embedding: []float32{3, 4}})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(nil, &config.EmbeddingConfig{
		Provider: config.ProviderOllama,
		Model:    "nomic-embed-text",
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaProvider() error = %v", err)
	}

	vectors, err := provider.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedDocuments() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3 (one per text)", got)
	}
	for i, v := range vectors {
		norm := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
		if math.Abs(norm-1) > 1e-6 {
			t.Errorf("vectors[%d] norm = %v, want 1", i, norm)
		}
	}
}

func TestOllamaProviderGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}

		var req OllamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream = true on blocking request")
		}
		if req.Options == nil || req.Options.Temperature != 0.3 {
			t.Errorf("options = %+v, want temperature 0.3", req.Options)
		}

		_ = json.NewEncoder(w).Encode(OllamaChatResponse{
			Message: OllamaMessage{Role: "assistant", Content: "local answer"},
			Done:    true,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(&config.LLMConfig{
		Provider:    config.ProviderOllama,
		Model:       "llama3.2",
		Temperature: 0.3,
		BaseURL:     server.URL,
	}, nil)
	if err != nil {
		t.Fatalf("NewOllamaProvider() error = %v", err)
	}

	text, err := provider.Generate(context.Background(), "Hello", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "local answer" {
		t.Errorf("Generate() = %q, want local answer", text)
	}
}

func TestOllamaProviderGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":7,"eval_count":2}`)
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(&config.LLMConfig{
		Provider: config.ProviderOllama,
		Model:    "llama3.2",
		BaseURL:  server.URL,
	}, nil)
	if err != nil {
		t.Fatalf("NewOllamaProvider() error = %v", err)
	}

	ch, err := provider.GenerateStream(context.Background(), "Hello", "")
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}

	var text strings.Builder
	var last StreamChunk
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		text.WriteString(chunk.Delta)
		last = chunk
	}

	if text.String() != "Hello" {
		t.Errorf("streamed text = %q, want Hello", text.String())
	}
	if last.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 9 {
		t.Errorf("usage = %+v, want total 9", last.Usage)
	}
}

func TestOllamaProviderNoAPIKeyRequired(t *testing.T) {
	if _, err := NewOllamaProvider(&config.LLMConfig{
		Provider: config.ProviderOllama,
		Model:    "llama3.2",
	}, nil); err != nil {
		t.Errorf("NewOllamaProvider() without API key error = %v, want nil", err)
	}
}
