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
	"fmt"

	"github.com/kadirpekel/vectra/pkg/config"
)

// New builds the backend described by the generation and embedding
// configs. When both name the same provider a single client serves both
// capabilities; otherwise two clients are composed, one per capability.
func New(gen *config.LLMConfig, emb *config.EmbeddingConfig) (Backend, error) {
	if gen == nil && emb == nil {
		return nil, fmt.Errorf("llms: no provider configured")
	}

	if gen != nil && emb != nil && gen.Provider == emb.Provider {
		return newBackend(gen.Provider, gen, emb)
	}

	split := &splitBackend{}
	if gen != nil {
		generator, err := newBackend(gen.Provider, gen, nil)
		if err != nil {
			return nil, err
		}
		split.generator = generator
	}
	if emb != nil {
		embedder, err := newBackend(emb.Provider, nil, emb)
		if err != nil {
			return nil, err
		}
		split.embedder = embedder
	}
	return split, nil
}

// NewGenerator builds a generation-only backend. Pipeline stages that
// override the root model (query rewriting, reranking, enrichment,
// agentic chunking) use this.
func NewGenerator(gen *config.LLMConfig) (Backend, error) {
	if gen == nil {
		return nil, fmt.Errorf("llms: no generation config provided")
	}
	return newBackend(gen.Provider, gen, nil)
}

func newBackend(provider config.Provider, gen *config.LLMConfig, emb *config.EmbeddingConfig) (Backend, error) {
	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(gen, emb)
	case config.ProviderOpenRouter:
		return NewOpenRouterProvider(gen)
	case config.ProviderAnthropic:
		return NewAnthropicProvider(gen)
	case config.ProviderGemini:
		return NewGeminiProvider(gen, emb)
	case config.ProviderHuggingFace:
		return NewHuggingFaceProvider(gen, emb)
	case config.ProviderOllama:
		return NewOllamaProvider(gen, emb)
	default:
		return nil, fmt.Errorf("llms: unknown provider %q", provider)
	}
}

// splitBackend routes embeddings and generation to different providers.
type splitBackend struct {
	generator Backend
	embedder  Backend
}

var _ Backend = (*splitBackend)(nil)

func (s *splitBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, notSupported("llms", "embeddings")
	}
	return s.embedder.EmbedDocuments(ctx, texts)
}

func (s *splitBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, notSupported("llms", "embeddings")
	}
	return s.embedder.EmbedQuery(ctx, text)
}

func (s *splitBackend) Generate(ctx context.Context, prompt, system string) (string, error) {
	if s.generator == nil {
		return "", notSupported("llms", "generation")
	}
	return s.generator.Generate(ctx, prompt, system)
}

func (s *splitBackend) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	if s.generator == nil {
		return nil, notSupported("llms", "generation")
	}
	return s.generator.GenerateStream(ctx, prompt, system)
}
