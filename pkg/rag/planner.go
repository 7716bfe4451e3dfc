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
	"fmt"
	"strings"

	"github.com/kadirpekel/vectra/pkg/config"
)

// maxContentChars bounds a context body when the chunk has no usable
// summary.
const maxContentChars = 1200

// Planner assembles the generation context from retrieved documents
// under a token budget.
//
// Documents are taken in ranked order. Each contributes either its
// stored summary (when short enough) or its leading content. Planning
// stops at the first document that would overflow the budget; later,
// smaller documents are not pulled forward, keeping the context
// aligned with the ranking.
type Planner struct {
	budget           int
	preferSummaries  int
	includeCitations bool
}

// NewPlanner creates a planner from configuration.
func NewPlanner(cfg config.QueryPlanningConfig) *Planner {
	cfg.SetDefaults()
	return &Planner{
		budget:           cfg.TokenBudget,
		preferSummaries:  cfg.PreferSummariesBelow,
		includeCitations: cfg.IncludeCitations == nil || *cfg.IncludeCitations,
	}
}

// EstimateTokens approximates the token count of text as ceil(len/4).
// The heuristic is part of the planning contract: budgets are stated
// against it, not against any real tokenizer.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Plan selects context parts within the token budget. Only the body
// counts toward the budget; citation headers ride along free.
func (p *Planner) Plan(docs []RetrievedDoc) []ContextPart {
	var parts []ContextPart
	total := 0

	for _, doc := range docs {
		meta, _ := decodeChunkMetadata(doc.Metadata)

		body := head(doc.Content, maxContentChars)
		if meta.Summary != "" && EstimateTokens(meta.Summary) <= p.preferSummaries {
			body = meta.Summary
		}

		cost := EstimateTokens(body)
		if total+cost > p.budget {
			break
		}
		total += cost

		parts = append(parts, ContextPart{
			Header: p.header(meta),
			Body:   body,
		})
	}

	return parts
}

func (p *Planner) header(meta ChunkMetadata) string {
	if !p.includeCitations {
		return ""
	}
	return citationHeader(meta)
}

// citationHeader formats the source line "{docTitle} {section}
// [pages F-T]". Empty title or section fields are dropped.
func citationHeader(meta ChunkMetadata) string {
	from, to := meta.PageFrom, meta.PageTo
	if from < 1 {
		from = 1
	}
	if to < from {
		to = from
	}

	var fields []string
	if meta.DocTitle != "" {
		fields = append(fields, meta.DocTitle)
	}
	if meta.Section != "" {
		fields = append(fields, meta.Section)
	}
	fields = append(fields, fmt.Sprintf("[pages %d-%d]", from, to))
	return strings.Join(fields, " ")
}
