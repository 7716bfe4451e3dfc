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
	"sync"

	"github.com/kadirpekel/vectra/pkg/config"
)

const ollamaBaseURL = "http://localhost:11434"

// ollamaEmbedMu serializes embedding requests. The llama runner can
// crash when it receives concurrent embedding calls, so batches go
// through one at a time.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedRequest is the request payload for /api/embeddings.
type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbedResponse is the response payload for /api/embeddings.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaChatRequest is the request payload for /api/chat.
type OllamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *OllamaOptions  `json:"options,omitempty"`
}

// OllamaMessage is a chat message on the wire.
type OllamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaOptions carries model parameters.
type OllamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// OllamaChatResponse is one response object from /api/chat. Streaming
// responses arrive as newline-delimited JSON, one object per line.
type OllamaChatResponse struct {
	Message         OllamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// OllamaProvider implements Backend over a local Ollama server.
type OllamaProvider struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature float64
	maxTokens   int
	client      *http.Client
}

var _ Backend = (*OllamaProvider)(nil)

// NewOllamaProvider builds an Ollama backend from the generation and
// embedding configs. Either may be nil, disabling that capability. No
// API key is needed for a local server.
func NewOllamaProvider(gen *config.LLMConfig, emb *config.EmbeddingConfig) (*OllamaProvider, error) {
	if gen == nil && emb == nil {
		return nil, fmt.Errorf("ollama: no configuration provided")
	}

	p := &OllamaProvider{
		baseURL: ollamaBaseURL,
		client:  &http.Client{},
	}

	if gen != nil {
		p.genModel = gen.Model
		p.temperature = gen.Temperature
		p.maxTokens = gen.MaxTokens
		if gen.BaseURL != "" {
			p.baseURL = gen.BaseURL
		}
		p.client.Timeout = gen.Timeout.Duration()
	}
	if emb != nil {
		p.embedModel = emb.Model
		if gen == nil {
			if emb.BaseURL != "" {
				p.baseURL = emb.BaseURL
			}
			p.client.Timeout = emb.Timeout.Duration()
		}
	}
	p.baseURL = strings.TrimSuffix(p.baseURL, "/")
	return p, nil
}

// EmbedDocuments embeds texts one request at a time; the endpoint takes
// a single prompt per call.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedModel == "" {
		return nil, notSupported("ollama", "embeddings")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp OllamaEmbedResponse
		req := OllamaEmbedRequest{Model: p.embedModel, Prompt: text}
		if err := postJSON(ctx, p.client, "ollama", p.baseURL+"/api/embeddings", nil, req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, &ProviderError{Provider: "ollama", Message: "empty embedding response"}
		}
		vectors[i] = Normalize(resp.Embedding)
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &ProviderError{Provider: "ollama", Message: "empty embedding response"}
	}
	return vectors[0], nil
}

// Generate produces a blocking completion.
func (p *OllamaProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	if p.genModel == "" {
		return "", notSupported("ollama", "generation")
	}

	req := p.buildChatRequest(prompt, system, false)

	var resp OllamaChatResponse
	if err := postJSON(ctx, p.client, "ollama", p.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &ProviderError{Provider: "ollama", Message: resp.Error}
	}
	return resp.Message.Content, nil
}

// GenerateStream produces a streaming completion over NDJSON.
func (p *OllamaProvider) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	if p.genModel == "" {
		return nil, notSupported("ollama", "generation")
	}

	req := p.buildChatRequest(prompt, system, true)
	out := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(out)

		resp, err := postStream(ctx, p.client, "ollama", p.baseURL+"/api/chat", nil, req)
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}
		defer resp.Body.Close()

		p.readNDJSON(ctx, resp.Body, out)
	}()

	return out, nil
}

func (p *OllamaProvider) buildChatRequest(prompt, system string, stream bool) OllamaChatRequest {
	var messages []OllamaMessage
	if system != "" {
		messages = append(messages, OllamaMessage{Role: "system", Content: system})
	}
	messages = append(messages, OllamaMessage{Role: "user", Content: prompt})

	req := OllamaChatRequest{
		Model:    p.genModel,
		Messages: messages,
		Stream:   stream,
	}
	if p.temperature > 0 || p.maxTokens > 0 {
		req.Options = &OllamaOptions{
			Temperature: p.temperature,
			NumPredict:  p.maxTokens,
		}
	}
	return req
}

// readNDJSON parses the newline-delimited JSON stream; the final object
// has done=true and carries eval counts.
func (p *OllamaProvider) readNDJSON(ctx context.Context, body io.Reader, out chan<- StreamChunk) {
	reader := bufio.NewReader(body)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return
			}
			out <- StreamChunk{Err: wrapTransportError("ollama", err)}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var resp OllamaChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			out <- StreamChunk{Err: &ProviderError{Provider: "ollama", Message: resp.Error}}
			return
		}

		if resp.Message.Content != "" {
			select {
			case out <- StreamChunk{Delta: resp.Message.Content}:
			case <-ctx.Done():
				return
			}
		}

		if resp.Done {
			finish := "stop"
			if resp.DoneReason == "length" {
				finish = "length"
			}
			select {
			case out <- StreamChunk{
				FinishReason: finish,
				Usage: &Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				},
			}:
			case <-ctx.Done():
			}
			return
		}
	}
}
