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
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"

	// Anthropic requires max_tokens on every request.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicRequest is the request payload for /v1/messages.
type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// AnthropicMessage is a chat message on the wire.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicResponse is the response payload for /v1/messages.
type AnthropicResponse struct {
	Content    []AnthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      AnthropicUsage     `json:"usage"`
	Error      *AnthropicError    `json:"error,omitempty"`
}

// AnthropicContent is one content block of a response.
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicUsage reports token counts.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicError is the provider's error envelope.
type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicStreamEvent is one SSE event of a streaming response. The
// Type field selects which of the optional members is populated.
type AnthropicStreamEvent struct {
	Type    string             `json:"type"`
	Delta   *AnthropicDelta    `json:"delta,omitempty"`
	Usage   *AnthropicUsage    `json:"usage,omitempty"`
	Message *AnthropicResponse `json:"message,omitempty"`
	Error   *AnthropicError    `json:"error,omitempty"`
}

// AnthropicDelta carries incremental text (content_block_delta) or the
// final stop reason (message_delta).
type AnthropicDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// AnthropicProvider implements Backend over the Anthropic Messages API.
// Anthropic has no embeddings endpoint; the embedding methods return an
// error wrapping ErrNotSupported.
type AnthropicProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

var _ Backend = (*AnthropicProvider)(nil)

// NewAnthropicProvider builds an Anthropic generation backend.
func NewAnthropicProvider(gen *config.LLMConfig) (*AnthropicProvider, error) {
	if gen == nil {
		return nil, fmt.Errorf("anthropic: no configuration provided")
	}
	if gen.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}

	baseURL := gen.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	maxTokens := gen.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	return &AnthropicProvider{
		apiKey:      gen.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       gen.Model,
		temperature: gen.Temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: gen.Timeout.Duration()},
	}, nil
}

func (p *AnthropicProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, notSupported("anthropic", "embeddings")
}

func (p *AnthropicProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, notSupported("anthropic", "embeddings")
}

func (p *AnthropicProvider) requestHeaders() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// Generate produces a blocking completion.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	req := p.buildRequest(prompt, system, false)

	var resp AnthropicResponse
	if err := postJSON(ctx, p.client, "anthropic", p.baseURL+"/v1/messages", p.requestHeaders(), req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &ProviderError{Provider: "anthropic", Message: resp.Error.Message}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// GenerateStream produces a streaming completion over SSE.
func (p *AnthropicProvider) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	req := p.buildRequest(prompt, system, true)
	out := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(out)

		resp, err := postStream(ctx, p.client, "anthropic", p.baseURL+"/v1/messages", p.requestHeaders(), req)
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}
		defer resp.Body.Close()

		p.readSSE(ctx, resp.Body, out)
	}()

	return out, nil
}

func (p *AnthropicProvider) buildRequest(prompt, system string, stream bool) AnthropicRequest {
	return AnthropicRequest{
		Model:       p.model,
		Messages:    []AnthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		System:      system,
		Stream:      stream,
	}
}

// readSSE parses the event stream. Text arrives in content_block_delta
// events; message_delta carries the stop reason and output token count,
// message_stop ends the stream.
func (p *AnthropicProvider) readSSE(ctx context.Context, body io.Reader, out chan<- StreamChunk) {
	var (
		reader       = bufio.NewReader(body)
		stopReason   string
		inputTokens  int
		outputTokens int
	)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			out <- StreamChunk{Err: wrapTransportError("anthropic", err)}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		payload := bytes.TrimPrefix(line, []byte("data: "))

		var event AnthropicStreamEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}

		switch event.Type {
		case "error":
			msg := "stream error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			out <- StreamChunk{Err: &ProviderError{Provider: "anthropic", Message: msg}}
			return

		case "message_start":
			if event.Message != nil {
				inputTokens = event.Message.Usage.InputTokens
			}

		case "content_block_delta":
			if event.Delta == nil || event.Delta.Text == "" {
				continue
			}
			select {
			case out <- StreamChunk{Delta: event.Delta.Text}:
			case <-ctx.Done():
				return
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				outputTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			select {
			case out <- StreamChunk{
				FinishReason: mapAnthropicStopReason(stopReason),
				Usage: &Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: outputTokens,
					TotalTokens:      inputTokens + outputTokens,
				},
			}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}
