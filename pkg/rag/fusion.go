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
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenize lowercases s and returns its alphanumeric tokens longer
// than minLen runes.
func tokenize(s string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > minLen {
			out = append(out, f)
		}
	}
	return out
}

// tokenSet returns the token set used for lexical similarity: unique
// lowercased alphanumeric tokens longer than two runes.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(s, 2) {
		set[t] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets have similarity 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// rrfFuse merges ranked lists by Reciprocal Rank Fusion:
//
//	score(d) = Σ over lists 1/(c + rank(d) + 1)
//
// with zero-based ranks. Documents are keyed by content. Scores are
// compared at millis precision, so near-equal single-list
// contributions collapse into ties resolved by discovery order. The
// returned Score carries the exact sum.
func rrfFuse(lists [][]RetrievedDoc, c float64) []RetrievedDoc {
	type fused struct {
		doc   RetrievedDoc
		score float64
	}

	byContent := make(map[string]*fused)
	var discovered []*fused

	for _, list := range lists {
		for rank, doc := range list {
			entry, ok := byContent[doc.Content]
			if !ok {
				entry = &fused{doc: doc}
				byContent[doc.Content] = entry
				discovered = append(discovered, entry)
			}
			entry.score += 1.0 / (c + float64(rank) + 1.0)
		}
	}

	sort.SliceStable(discovered, func(i, j int) bool {
		return quantize(discovered[i].score) > quantize(discovered[j].score)
	})

	out := make([]RetrievedDoc, len(discovered))
	for i, entry := range discovered {
		doc := entry.doc
		doc.Score = entry.score
		out[i] = doc
	}
	return out
}

func quantize(score float64) float64 {
	return math.Round(score*1000) / 1000
}

// mmrSelect picks k candidates balancing relevance against novelty.
// Starting from the top candidate, each step takes the argmax of
//
//	λ·relevance − (1−λ)·max Jaccard to the already selected
//
// over the remaining pool, with relevance taken from the incoming
// Score (0 when absent). Candidates must arrive ranked by relevance;
// λ is clamped to [0, 1].
func mmrSelect(candidates []RetrievedDoc, k int, lambda float64) []RetrievedDoc {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if lambda < 0 {
		lambda = 0
	} else if lambda > 1 {
		lambda = 1
	}

	sets := make([]map[string]struct{}, len(candidates))
	for i := range candidates {
		sets[i] = tokenSet(candidates[i].Content)
	}

	selected := []int{0}
	var pool []int
	for i := 1; i < len(candidates); i++ {
		pool = append(pool, i)
	}

	for len(selected) < k && len(pool) > 0 {
		best := -1
		bestScore := math.Inf(-1)

		for pos, ci := range pool {
			maxSim := 0.0
			for _, si := range selected {
				if sim := jaccard(sets[ci], sets[si]); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*candidates[ci].Score - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				best = pos
			}
		}

		selected = append(selected, pool[best])
		pool = append(pool[:best], pool[best+1:]...)
	}

	out := make([]RetrievedDoc, 0, len(selected))
	for _, i := range selected {
		out = append(out, candidates[i])
	}
	return out
}

// boostByKeywords stable-sorts docs by how many query terms appear
// among their stored keywords. Docs with equal boosts keep their
// retrieval order; without keyword metadata the order is unchanged.
func boostByKeywords(query string, docs []RetrievedDoc) []RetrievedDoc {
	terms := tokenize(query, 2)
	if len(terms) == 0 || len(docs) < 2 {
		return docs
	}

	boosts := make(map[int]int, len(docs))
	for i, doc := range docs {
		keywords := metadataKeywords(doc.Metadata)
		if len(keywords) == 0 {
			continue
		}
		for _, t := range terms {
			if _, ok := keywords[t]; ok {
				boosts[i]++
			}
		}
	}

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return boosts[order[i]] > boosts[order[j]]
	})

	out := make([]RetrievedDoc, len(docs))
	for pos, i := range order {
		out[pos] = docs[i]
	}
	return out
}

// metadataKeywords extracts the lowercased keyword set from stored
// metadata. Backends round-trip []string as []any, so both shapes
// are accepted.
func metadataKeywords(meta map[string]any) map[string]struct{} {
	if meta == nil {
		return nil
	}
	var keywords []string
	switch v := meta[MetaKeywords].(type) {
	case []string:
		keywords = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				keywords = append(keywords, s)
			}
		}
	}
	if len(keywords) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		set[strings.ToLower(kw)] = struct{}{}
	}
	return set
}
