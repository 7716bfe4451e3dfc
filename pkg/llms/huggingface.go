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
	"net/http"
	"strings"

	"github.com/kadirpekel/vectra/pkg/config"
)

const (
	// Feature-extraction pipeline host for embeddings.
	huggingFaceInferenceURL = "https://api-inference.huggingface.co"

	// Chat completions router, OpenAI wire compatible.
	huggingFaceRouterURL = "https://router.huggingface.co/v1"
)

// HuggingFaceEmbedRequest is the request payload for the
// feature-extraction pipeline.
type HuggingFaceEmbedRequest struct {
	Inputs  []string                `json:"inputs"`
	Options HuggingFaceEmbedOptions `json:"options"`
}

// HuggingFaceEmbedOptions tunes pipeline behavior.
type HuggingFaceEmbedOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// HuggingFaceProvider implements Backend over the Hugging Face
// inference API. Embeddings use the feature-extraction pipeline with a
// sentence-embedding model; generation goes through the router, which
// speaks the OpenAI wire protocol.
type HuggingFaceProvider struct {
	apiKey     string
	baseURL    string
	embedModel string
	client     *http.Client
	chat       *OpenAIProvider
}

var _ Backend = (*HuggingFaceProvider)(nil)

// NewHuggingFaceProvider builds a Hugging Face backend from the
// generation and embedding configs. Either may be nil, disabling that
// capability.
func NewHuggingFaceProvider(gen *config.LLMConfig, emb *config.EmbeddingConfig) (*HuggingFaceProvider, error) {
	if gen == nil && emb == nil {
		return nil, fmt.Errorf("huggingface: no configuration provided")
	}

	p := &HuggingFaceProvider{
		baseURL: huggingFaceInferenceURL,
		client:  &http.Client{},
	}

	if emb != nil {
		p.apiKey = emb.APIKey
		p.embedModel = emb.Model
		if emb.BaseURL != "" {
			p.baseURL = emb.BaseURL
		}
		p.client.Timeout = emb.Timeout.Duration()
	}
	if gen != nil {
		if p.apiKey == "" {
			p.apiKey = gen.APIKey
		}
		chat, err := newOpenAICompatible(string(config.ProviderHuggingFace), huggingFaceRouterURL, gen, nil)
		if err != nil {
			return nil, err
		}
		p.chat = chat
	}
	p.baseURL = strings.TrimSuffix(p.baseURL, "/")

	if p.apiKey == "" {
		return nil, fmt.Errorf("huggingface: API key is required")
	}
	return p, nil
}

// EmbedDocuments embeds texts through the feature-extraction pipeline.
// The model must be a sentence-embedding model returning one pooled
// vector per input.
func (p *HuggingFaceProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedModel == "" {
		return nil, notSupported("huggingface", "embeddings")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	url := p.baseURL + "/pipeline/feature-extraction/" + p.embedModel
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	req := HuggingFaceEmbedRequest{
		Inputs:  texts,
		Options: HuggingFaceEmbedOptions{WaitForModel: true},
	}

	var vectors [][]float32
	if err := postJSON(ctx, p.client, "huggingface", url, headers, req, &vectors); err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, &ProviderError{
			Provider: "huggingface",
			Message:  fmt.Sprintf("embedding count mismatch: sent %d texts, got %d embeddings", len(texts), len(vectors)),
		}
	}

	for i := range vectors {
		vectors[i] = Normalize(vectors[i])
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (p *HuggingFaceProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &ProviderError{Provider: "huggingface", Message: "empty embedding response"}
	}
	return vectors[0], nil
}

// Generate produces a blocking completion through the router.
func (p *HuggingFaceProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	if p.chat == nil {
		return "", notSupported("huggingface", "generation")
	}
	return p.chat.Generate(ctx, prompt, system)
}

// GenerateStream produces a streaming completion through the router.
func (p *HuggingFaceProvider) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	if p.chat == nil {
		return nil, notSupported("huggingface", "generation")
	}
	return p.chat.GenerateStream(ctx, prompt, system)
}
