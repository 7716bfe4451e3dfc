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
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/kadirpekel/vectra/pkg/config"
)

func TestNewSameProviderSharesClient(t *testing.T) {
	backend, err := New(
		&config.LLMConfig{Provider: config.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test"},
		&config.EmbeddingConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small", APIKey: "sk-test"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := backend.(*OpenAIProvider); !ok {
		t.Errorf("New() with matching providers = %T, want *OpenAIProvider", backend)
	}
}

func TestNewSplitProviders(t *testing.T) {
	backend, err := New(
		&config.LLMConfig{Provider: config.ProviderAnthropic, Model: "claude-3-5-haiku-latest", APIKey: "sk-ant"},
		&config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	split, ok := backend.(*splitBackend)
	if !ok {
		t.Fatalf("New() with differing providers = %T, want *splitBackend", backend)
	}
	if _, ok := split.generator.(*AnthropicProvider); !ok {
		t.Errorf("generator = %T, want *AnthropicProvider", split.generator)
	}
	if _, ok := split.embedder.(*OllamaProvider); !ok {
		t.Errorf("embedder = %T, want *OllamaProvider", split.embedder)
	}
}

func TestNewNoConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New(nil, nil) should fail")
	}
}

func TestNewGenerator(t *testing.T) {
	backend, err := NewGenerator(&config.LLMConfig{
		Provider: config.ProviderOllama,
		Model:    "llama3.2",
	})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if _, ok := backend.(*OllamaProvider); !ok {
		t.Errorf("NewGenerator() = %T, want *OllamaProvider", backend)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(&config.LLMConfig{Provider: "grok", Model: "x"}, nil)
	if err == nil {
		t.Error("New() with unknown provider should fail")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize([3 4]) = %v, want [0.6 0.8]", v)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", math.Sqrt(norm))
	}

	zero := Normalize([]float32{0, 0, 0})
	for i, x := range zero {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, x)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		if got := retryableStatus(tt.status); got != tt.retryable {
			t.Errorf("retryableStatus(%d) = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v, want 3s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v, want 0", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("parseRetryAfter(garbage) = %v, want 0", got)
	}
	if got := parseRetryAfter("-5"); got != 0 {
		t.Errorf("parseRetryAfter(-5) = %v, want 0", got)
	}

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 31*time.Second {
		t.Errorf("parseRetryAfter(http date) = %v, want about 30s", got)
	}
}
