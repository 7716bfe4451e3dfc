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
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/llms"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// AgenticChunker refines recursive windows into self-contained
// propositions using a language backend.
//
// Each window is sent to the backend with a prompt asking for a JSON
// array of standalone statements. The extraction is best-effort: a
// backend error, unparseable output or an empty result keeps the
// recursive window unchanged, so agentic chunking never loses
// content relative to recursive chunking.
type AgenticChunker struct {
	recursive *RecursiveChunker
	backend   llms.Backend
}

// NewAgenticChunker creates an agentic chunker on top of the
// recursive splitter.
func NewAgenticChunker(cfg config.ChunkingConfig, backend llms.Backend) *AgenticChunker {
	return &AgenticChunker{
		recursive: NewRecursiveChunker(cfg),
		backend:   backend,
	}
}

// Chunk splits text into propositions, window by window.
func (c *AgenticChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	windows, err := c.recursive.Chunk(ctx, text)
	if err != nil || len(windows) == 0 {
		return windows, err
	}

	out := make([]string, 0, len(windows))
	for _, window := range windows {
		props, err := c.propositions(ctx, window)
		if err != nil {
			return nil, err
		}
		out = append(out, props...)
	}
	return out, nil
}

// propositions extracts statements from one window. The returned
// error is non-nil only for context cancellation; every other failure
// degrades to the window itself.
func (c *AgenticChunker) propositions(ctx context.Context, window string) ([]string, error) {
	prompt := fmt.Sprintf(`Decompose the following text into simple, self-contained propositions.
Each proposition must be a complete statement that makes sense on its own.

Text:
%s

Respond with a JSON array of strings, no other text:
["proposition 1", "proposition 2", ...]`, window)

	response, err := c.backend.Generate(ctx, prompt, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("Proposition extraction failed, keeping window", "error", err)
		return []string{window}, nil
	}

	props := parsePropositions(response)
	if len(props) == 0 {
		slog.Debug("No usable propositions in response, keeping window")
		return []string{window}, nil
	}
	return props, nil
}

// parsePropositions pulls a JSON string array out of an LLM response
// and normalizes the entries: trim, collapse internal whitespace,
// drop duplicates and anything shorter than two characters. Returns
// nil when no array parses.
func parsePropositions(response string) []string {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range raw {
		p = whitespaceRun.ReplaceAllString(strings.TrimSpace(p), " ")
		if len(p) < 2 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
