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
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/kadirpekel/vectra/pkg/llms"
)

var firstInteger = regexp.MustCompile(`\d+`)

// Reranker rescores retrieval candidates with a language model.
//
// Vector similarity ranks by embedding geometry; the reranker reads
// the actual text. Each candidate is scored independently on a 0-10
// scale, then the list is sorted by score and cut to topN. Scoring is
// deliberately forgiving: an unparseable or failed response scores 0
// rather than failing the query.
type Reranker struct {
	backend llms.Backend
	topN    int
}

// NewReranker creates a reranker keeping the topN best candidates.
func NewReranker(backend llms.Backend, topN int) *Reranker {
	if topN <= 0 {
		topN = 5
	}
	return &Reranker{backend: backend, topN: topN}
}

// Rerank scores and reorders candidates. Ties keep their incoming
// order, so equal scores preserve the retrieval ranking.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []RetrievedDoc) ([]RetrievedDoc, error) {
	if len(docs) == 0 {
		return docs, nil
	}

	scores := make(map[int]int, len(docs))
	for i, doc := range docs {
		score, err := r.scoreOne(ctx, query, doc.Content)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	if len(order) > r.topN {
		order = order[:r.topN]
	}
	out := make([]RetrievedDoc, len(order))
	for pos, i := range order {
		out[pos] = docs[i]
	}
	return out, nil
}

// scoreOne rates one document. The returned error is non-nil only
// for context cancellation; other failures score 0.
func (r *Reranker) scoreOne(ctx context.Context, query, content string) (int, error) {
	prompt := fmt.Sprintf(`Analyze the relevance (0-10) of the following document to the query.

Query: %s

Document:
%s

Return ONLY the integer.`, query, content)

	response, err := r.backend.Generate(ctx, prompt, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		slog.Debug("Rerank scoring failed, using 0", "error", err)
		return 0, nil
	}

	match := firstInteger.FindString(response)
	if match == "" {
		return 0, nil
	}
	score, err := strconv.Atoi(match)
	if err != nil {
		return 0, nil
	}
	return score, nil
}
