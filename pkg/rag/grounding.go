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

import "github.com/kadirpekel/vectra/pkg/config"

// Grounder extracts verbatim sentences from retrieved documents that
// share terms with the query.
//
// In strict mode the extracted snippets REPLACE the planned context,
// so every character the generator sees is a sentence that exists in
// a retrieved document. In the default mode snippets are appended
// after the planned parts as supporting evidence.
type Grounder struct {
	strict      bool
	maxSnippets int
}

// NewGrounder creates a grounder from configuration.
func NewGrounder(cfg config.GroundingConfig) *Grounder {
	cfg.SetDefaults()
	return &Grounder{
		strict:      cfg.Strict,
		maxSnippets: cfg.MaxSnippets,
	}
}

// Apply merges snippets into the planned context according to the
// grounding mode.
func (g *Grounder) Apply(query string, parts []ContextPart, docs []RetrievedDoc) []ContextPart {
	snippets := g.snippets(query, docs)
	if g.strict {
		return snippets
	}
	return append(parts, snippets...)
}

// snippets walks documents in ranked order and their sentences in
// text order, keeping sentences that share at least one token with
// the query, up to maxSnippets in total.
func (g *Grounder) snippets(query string, docs []RetrievedDoc) []ContextPart {
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var out []ContextPart
	for _, doc := range docs {
		meta, _ := decodeChunkMetadata(doc.Metadata)
		header := citationHeader(meta)

		for _, sentence := range splitSentences(doc.Content) {
			overlap := 0
			for token := range tokenSet(sentence) {
				if _, ok := queryTokens[token]; ok {
					overlap++
				}
			}
			if overlap == 0 {
				continue
			}
			out = append(out, ContextPart{Header: header, Body: sentence})
			if len(out) >= g.maxSnippets {
				return out
			}
		}
	}
	return out
}
