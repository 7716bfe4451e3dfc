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
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kadirpekel/vectra/pkg/llms"
)

// Enrichment is the LLM-generated metadata attached to a chunk.
type Enrichment struct {
	Summary               string   `json:"summary"`
	Keywords              []string `json:"keywords"`
	HypotheticalQuestions []string `json:"hypotheticalQuestions"`
}

// Enricher asks a language backend for a summary, keywords and
// hypothetical questions per chunk. It always produces a usable
// result: when the backend fails or returns something unparseable,
// a heuristic fallback takes over (leading excerpt as summary,
// frequency-ranked keywords, no questions).
type Enricher struct {
	backend llms.Backend
}

// NewEnricher creates an enricher.
func NewEnricher(backend llms.Backend) *Enricher {
	return &Enricher{backend: backend}
}

// Enrich computes metadata for one chunk. The returned error is
// non-nil only for context cancellation.
func (e *Enricher) Enrich(ctx context.Context, content string) (Enrichment, error) {
	prompt := fmt.Sprintf(`Analyze the following text and return a JSON object with exactly these fields:
- "summary": one or two sentences capturing the main point
- "keywords": up to 10 salient terms
- "hypotheticalQuestions": up to 3 questions this text answers

Text:
%s

Respond with a single JSON object, no other text.`, content)

	response, err := e.backend.Generate(ctx, prompt, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Enrichment{}, ctxErr
		}
		slog.Warn("Enrichment failed, falling back to heuristics", "error", err)
		return fallbackEnrichment(content), nil
	}

	enrichment, ok := parseEnrichment(response)
	if !ok {
		slog.Debug("Unparseable enrichment response, falling back to heuristics")
		return fallbackEnrichment(content), nil
	}
	return enrichment, nil
}

// parseEnrichment pulls a JSON object out of an LLM response.
func parseEnrichment(response string) (Enrichment, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || start >= end {
		return Enrichment{}, false
	}

	var out Enrichment
	if err := json.Unmarshal([]byte(response[start:end+1]), &out); err != nil {
		return Enrichment{}, false
	}

	out.Summary = strings.TrimSpace(out.Summary)
	out.Keywords = cleanStrings(out.Keywords)
	out.HypotheticalQuestions = cleanStrings(out.HypotheticalQuestions)
	return out, true
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fallbackEnrichment synthesizes metadata without a backend: the
// first 300 characters as summary and the ten most frequent tokens
// longer than three runes as keywords.
func fallbackEnrichment(content string) Enrichment {
	return Enrichment{
		Summary:               head(content, 300),
		Keywords:              frequentTokens(content, 10),
		HypotheticalQuestions: []string{},
	}
}

// frequentTokens ranks tokens longer than three runes by frequency,
// first occurrence breaking ties.
func frequentTokens(content string, n int) []string {
	type freq struct {
		token string
		count int
	}

	byToken := make(map[string]*freq)
	var order []*freq
	for _, t := range tokenize(content, 3) {
		entry, ok := byToken[t]
		if !ok {
			entry = &freq{token: t}
			byToken[t] = entry
			order = append(order, entry)
		}
		entry.count++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]string, len(order))
	for i, entry := range order {
		out[i] = entry.token
	}
	return out
}

// head returns the leading n bytes of s, shortened if needed so the
// cut lands on a rune boundary.
func head(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
