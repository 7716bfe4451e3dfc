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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/vectra/pkg/config"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAIMessage is a chat message on the wire.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIRequest is the request payload for /chat/completions.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// OpenAIResponse is the response payload for /chat/completions, shared
// between the blocking and streaming forms.
type OpenAIResponse struct {
	Choices []OpenAIChoice `json:"choices"`
	Usage   *OpenAIUsage   `json:"usage,omitempty"`
	Error   *OpenAIError   `json:"error,omitempty"`
}

// OpenAIChoice is one completion candidate. Message is set on blocking
// responses, Delta on streaming chunks.
type OpenAIChoice struct {
	Message      OpenAIMessage `json:"message"`
	Delta        *OpenAIDelta  `json:"delta,omitempty"`
	FinishReason string        `json:"finish_reason"`
}

// OpenAIDelta is the incremental content of a streaming chunk.
type OpenAIDelta struct {
	Content string `json:"content"`
}

// OpenAIUsage reports token counts.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIError is the provider's error envelope.
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// OpenAIEmbedRequest is the request payload for /embeddings.
type OpenAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// OpenAIEmbedResponse is the response payload for /embeddings.
type OpenAIEmbedResponse struct {
	Data  []OpenAIEmbedding `json:"data"`
	Usage *OpenAIUsage      `json:"usage,omitempty"`
}

// OpenAIEmbedding is one embedding result. Index maps it back to the
// input position; the API does not guarantee response order.
type OpenAIEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// OpenAIProvider implements Backend over the OpenAI REST API. It also
// serves OpenAI-compatible endpoints (OpenRouter, vLLM, LM Studio)
// through a custom base URL and pass-through headers.
type OpenAIProvider struct {
	name        string
	apiKey      string
	baseURL     string
	genModel    string
	embedModel  string
	dimensions  int
	temperature float64
	maxTokens   int
	headers     map[string]string
	client      *http.Client
}

var _ Backend = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds an OpenAI backend from the generation and
// embedding configs. Either may be nil, disabling that capability.
func NewOpenAIProvider(gen *config.LLMConfig, emb *config.EmbeddingConfig) (*OpenAIProvider, error) {
	return newOpenAICompatible(string(config.ProviderOpenAI), openAIBaseURL, gen, emb)
}

// NewOpenRouterProvider builds a generation-only backend against the
// OpenRouter gateway, which speaks the OpenAI wire protocol.
func NewOpenRouterProvider(gen *config.LLMConfig) (*OpenAIProvider, error) {
	return newOpenAICompatible(string(config.ProviderOpenRouter), openRouterBaseURL, gen, nil)
}

func newOpenAICompatible(name, baseURL string, gen *config.LLMConfig, emb *config.EmbeddingConfig) (*OpenAIProvider, error) {
	if gen == nil && emb == nil {
		return nil, fmt.Errorf("%s: no configuration provided", name)
	}

	p := &OpenAIProvider{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{},
	}

	if gen != nil {
		p.apiKey = gen.APIKey
		p.genModel = gen.Model
		p.temperature = gen.Temperature
		p.maxTokens = gen.MaxTokens
		p.headers = gen.DefaultHeaders
		if gen.BaseURL != "" {
			p.baseURL = gen.BaseURL
		}
		p.client.Timeout = gen.Timeout.Duration()
	}
	if emb != nil {
		if p.apiKey == "" {
			p.apiKey = emb.APIKey
		}
		p.embedModel = emb.Model
		p.dimensions = emb.Dimensions
		if gen == nil {
			if emb.BaseURL != "" {
				p.baseURL = emb.BaseURL
			}
			p.client.Timeout = emb.Timeout.Duration()
		}
	}
	p.baseURL = strings.TrimSuffix(p.baseURL, "/")

	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: API key is required", name)
	}
	return p, nil
}

func (p *OpenAIProvider) requestHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}
	for k, v := range p.headers {
		headers[k] = v
	}
	return headers
}

// EmbedDocuments embeds texts in a single API call. Results are
// reordered by the response index field and L2-normalized.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedModel == "" {
		return nil, notSupported(p.name, "embeddings")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	req := OpenAIEmbedRequest{
		Model: p.embedModel,
		Input: texts,
	}
	// The dimensions parameter only exists on text-embedding-3 models;
	// older models reject it.
	if p.dimensions > 0 && strings.HasPrefix(p.embedModel, "text-embedding-3") {
		req.Dimensions = p.dimensions
	}

	var resp OpenAIEmbedResponse
	if err := postJSON(ctx, p.client, p.name, p.baseURL+"/embeddings", p.requestHeaders(), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: p.name,
			Message:  fmt.Sprintf("embedding count mismatch: sent %d texts, got %d embeddings", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, &ProviderError{
				Provider: p.name,
				Message:  fmt.Sprintf("embedding index %d out of range", item.Index),
			}
		}
		vectors[item.Index] = Normalize(item.Embedding)
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &ProviderError{Provider: p.name, Message: "empty embedding response"}
	}
	return vectors[0], nil
}

// Generate produces a blocking completion.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	if p.genModel == "" {
		return "", notSupported(p.name, "generation")
	}

	req := p.buildChatRequest(prompt, system, false)

	var resp OpenAIResponse
	if err := postJSON(ctx, p.client, p.name, p.baseURL+"/chat/completions", p.requestHeaders(), req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &ProviderError{Provider: p.name, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Message: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream produces a streaming completion over SSE.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	if p.genModel == "" {
		return nil, notSupported(p.name, "generation")
	}

	req := p.buildChatRequest(prompt, system, true)
	out := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(out)

		resp, err := postStream(ctx, p.client, p.name, p.baseURL+"/chat/completions", p.requestHeaders(), req)
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}
		defer resp.Body.Close()

		p.readSSE(ctx, resp.Body, out)
	}()

	return out, nil
}

func (p *OpenAIProvider) buildChatRequest(prompt, system string, stream bool) OpenAIRequest {
	var messages []OpenAIMessage
	if system != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: system})
	}
	messages = append(messages, OpenAIMessage{Role: "user", Content: prompt})

	return OpenAIRequest{
		Model:       p.genModel,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      stream,
	}
}

// readSSE parses the server-sent event stream: "data: " prefixed JSON
// lines terminated by a [DONE] sentinel.
func (p *OpenAIProvider) readSSE(ctx context.Context, body io.Reader, out chan<- StreamChunk) {
	var (
		reader       = bufio.NewReader(body)
		finishReason string
		usage        *Usage
	)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			out <- StreamChunk{Err: wrapTransportError(p.name, err)}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		payload := bytes.TrimPrefix(line, []byte("data: "))

		if bytes.Equal(payload, []byte("[DONE]")) {
			break
		}

		var chunk OpenAIResponse
		if err := json.Unmarshal(payload, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			out <- StreamChunk{Err: &ProviderError{Provider: p.name, Message: chunk.Error.Message}}
			return
		}
		if chunk.Usage != nil {
			usage = &Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta == nil || choice.Delta.Content == "" {
			continue
		}

		select {
		case out <- StreamChunk{Delta: choice.Delta.Content}:
		case <-ctx.Done():
			return
		}
	}

	if finishReason == "" {
		finishReason = "stop"
	}
	select {
	case out <- StreamChunk{FinishReason: finishReason, Usage: usage}:
	case <-ctx.Done():
	}
}
