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

// Package llms provides the language model backends used by the engine:
// embedding text into vectors and generating completions, optionally
// streamed. Each provider speaks its native wire protocol behind the
// shared Backend interface.
package llms

import "context"

// Backend is the capability surface the pipeline needs from a language
// model provider.
//
// Implementations are safe for concurrent use. Providers without an
// embeddings endpoint (anthropic, openrouter) return an error wrapping
// ErrNotSupported from the embedding methods.
type Backend interface {
	// EmbedDocuments embeds a batch of texts, returning one vector per
	// input in the same order. Returned vectors are L2-normalized.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Generate produces a completion for prompt. A non-empty system
	// string is sent as the provider's system instruction.
	Generate(ctx context.Context, prompt, system string) (string, error)

	// GenerateStream produces a completion incrementally. The returned
	// channel is closed when the stream ends; a terminal failure is
	// delivered as a chunk with Err set. Cancelling the context stops
	// the producer.
	GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error)
}

// Usage reports token consumption for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one increment of a streaming generation.
type StreamChunk struct {
	// Delta is the next fragment of generated text.
	Delta string

	// FinishReason is set on the final content chunk: "stop" or "length".
	FinishReason string

	// Usage is set at most once, on the final chunk, when the provider
	// reports token counts for the stream.
	Usage *Usage

	// Err terminates the stream when set. No further chunks follow.
	Err error
}

// streamBufferSize is the capacity of streaming channels. A full buffer
// applies backpressure to the producer goroutine.
const streamBufferSize = 100
