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
	"strings"

	"github.com/kadirpekel/vectra/pkg/llms"
)

// Rewriter transforms queries before retrieval.
//
// HyDE generates a hypothetical passage whose embedding lands closer
// to relevant documents than the bare question's. Multi-query fans a
// question out into reformulations so differently-worded documents
// still match.
type Rewriter struct {
	backend llms.Backend
}

// NewRewriter creates a rewriter.
func NewRewriter(backend llms.Backend) *Rewriter {
	return &Rewriter{backend: backend}
}

// HypotheticalDocument writes a passage that would answer the query.
// The caller embeds the passage in place of the query.
func (r *Rewriter) HypotheticalDocument(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(`Write a short, plausible passage that directly answers the following query.
Sound like a real document excerpt and do not mention that it is hypothetical.

Query: %s

Passage:`, query)

	passage, err := r.backend.Generate(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	passage = strings.TrimSpace(passage)
	if passage == "" {
		return "", fmt.Errorf("empty hypothetical document")
	}
	return passage, nil
}

// Rewrite produces the multi-query set: up to three reformulations,
// up to three hypothetical questions, and always the original query.
// Exact duplicates are dropped; the error is non-nil only for context
// cancellation.
func (r *Rewriter) Rewrite(ctx context.Context, query string) ([]string, error) {
	alternates, err := r.alternates(ctx, query)
	if err != nil {
		return nil, err
	}
	questions, err := r.hypotheticalQuestions(ctx, query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, q := range append(append(alternates, questions...), query) {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out, nil
}

// alternates asks for newline-separated reformulations and keeps the
// first three non-empty lines. Backend failures degrade to none.
func (r *Rewriter) alternates(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(`Rewrite the following search query in 3 different ways.
Return one rewrite per line, without numbering or any other text.

Query: %s`, query)

	response, err := r.backend.Generate(ctx, prompt, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("Query rewriting failed, using original query only", "error", err)
		return nil, nil
	}

	var out []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == 3 {
			break
		}
	}
	return out, nil
}

// hypotheticalQuestions asks for related questions as a JSON array,
// capped at three. Any failure degrades to none.
func (r *Rewriter) hypotheticalQuestions(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(`List up to 3 related questions whose answers would also help answer this query: %s

Respond with a JSON array of strings, no other text.`, query)

	response, err := r.backend.Generate(ctx, prompt, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Debug("Hypothetical question generation failed", "error", err)
		return nil, nil
	}

	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, nil
	}

	var out []string
	for _, q := range raw {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == 3 {
			break
		}
	}
	return out, nil
}
