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
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kadirpekel/vectra/pkg/config"
)

// GeminiProvider implements Backend over the official Google genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	genModel    string
	embedModel  string
	dimensions  int
	temperature float64
	maxTokens   int
}

var _ Backend = (*GeminiProvider)(nil)

// NewGeminiProvider builds a Gemini backend from the generation and
// embedding configs. Either may be nil, disabling that capability.
func NewGeminiProvider(gen *config.LLMConfig, emb *config.EmbeddingConfig) (*GeminiProvider, error) {
	if gen == nil && emb == nil {
		return nil, fmt.Errorf("gemini: no configuration provided")
	}

	p := &GeminiProvider{}
	var apiKey string

	if gen != nil {
		apiKey = gen.APIKey
		p.genModel = gen.Model
		p.temperature = gen.Temperature
		p.maxTokens = gen.MaxTokens
	}
	if emb != nil {
		if apiKey == "" {
			apiKey = emb.APIKey
		}
		p.embedModel = emb.Model
		p.dimensions = emb.Dimensions
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}

	// Constructors do not take a context; client creation performs no IO.
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// EmbedDocuments embeds texts in a single batched call.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedModel == "" {
		return nil, notSupported("gemini", "embeddings")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		}
	}

	cfg := &genai.EmbedContentConfig{}
	if p.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(p.dimensions))
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, cfg)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &ProviderError{
			Provider: "gemini",
			Message:  fmt.Sprintf("embedding count mismatch: sent %d texts, got %d embeddings", len(texts), len(resp.Embeddings)),
		}
	}

	vectors := make([][]float32, len(texts))
	for i, embedding := range resp.Embeddings {
		vectors[i] = Normalize(embedding.Values)
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &ProviderError{Provider: "gemini", Message: "empty embedding response"}
	}
	return vectors[0], nil
}

// Generate produces a blocking completion.
func (p *GeminiProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	if p.genModel == "" {
		return "", notSupported("gemini", "generation")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.genModel, p.buildContents(prompt), p.buildConfig(system))
	if err != nil {
		return "", wrapGeminiError(err)
	}
	return extractGeminiText(resp), nil
}

// GenerateStream produces a streaming completion.
func (p *GeminiProvider) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	if p.genModel == "" {
		return nil, notSupported("gemini", "generation")
	}

	out := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(out)

		var (
			finishReason string
			usage        *Usage
		)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.genModel, p.buildContents(prompt), p.buildConfig(system)) {
			if err != nil {
				out <- StreamChunk{Err: wrapGeminiError(err)}
				return
			}

			if resp.UsageMetadata != nil {
				usage = &Usage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			if len(resp.Candidates) == 0 {
				continue
			}

			candidate := resp.Candidates[0]
			if candidate.FinishReason != "" {
				finishReason = mapGeminiFinishReason(candidate.FinishReason)
			}
			if delta := extractGeminiText(resp); delta != "" {
				select {
				case out <- StreamChunk{Delta: delta}:
				case <-ctx.Done():
					return
				}
			}
		}

		if finishReason == "" {
			finishReason = "stop"
		}
		select {
		case out <- StreamChunk{FinishReason: finishReason, Usage: usage}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

func (p *GeminiProvider) buildContents(prompt string) []*genai.Content {
	return []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
}

func (p *GeminiProvider) buildConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if p.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(p.temperature))
	}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.maxTokens)
	}
	return cfg
}

// extractGeminiText concatenates the text parts of the first candidate,
// skipping thinking parts.
func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text += part.Text
		}
	}
	return text
}

func mapGeminiFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return "length"
	default:
		return "stop"
	}
}

// wrapGeminiError classifies SDK errors by the underlying HTTP status.
// Context cancellation passes through untouched.
func wrapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:  "gemini",
			Status:    apiErr.Code,
			Message:   apiErr.Message,
			Retryable: retryableStatus(apiErr.Code),
			Err:       err,
		}
	}
	return &ProviderError{Provider: "gemini", Retryable: true, Err: err}
}
