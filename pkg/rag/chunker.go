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
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kadirpekel/vectra/pkg/config"
)

// Chunker splits document text into indexable pieces.
//
// Chunking quality drives retrieval quality: too small loses context,
// too large dilutes relevance. Both implementations cut on sentence
// boundaries so chunks stay readable.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]string, error)
}

// RecursiveChunker assembles sentences into windows of at least
// chunkSize characters. Consecutive windows share an overlap whose
// length adapts to the information density of the emitted window:
//
//	overlap = min(baseOverlap + floor(H*50), chunkSize/3)
//
// where H is the Shannon entropy (bits) of the window's character
// distribution. Dense windows carry more context forward. The formula
// is part of the chunking contract; stored chunk boundaries depend on
// it, so it must not drift.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewRecursiveChunker creates a chunker from configuration.
func NewRecursiveChunker(cfg config.ChunkingConfig) *RecursiveChunker {
	cfg.SetDefaults()
	return &RecursiveChunker{
		chunkSize:  cfg.ChunkSize,
		overlap:    cfg.ChunkOverlap,
		separators: cfg.Separators,
	}
}

// Chunk splits text into overlapping windows.
func (c *RecursiveChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var sentences []string
	for _, segment := range presplit(text, c.separators, c.chunkSize) {
		sentences = append(sentences, splitSentences(segment)...)
	}

	var chunks []string
	current := ""
	fresh := false // a sentence was appended since the last emission

	for _, sentence := range sentences {
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
		fresh = true

		if len(current) >= c.chunkSize {
			chunks = append(chunks, current)
			current = tail(current, c.adaptiveOverlap(current))
			fresh = false
		}
	}

	// Flush the partial window, but never a bare overlap carry: its
	// content is already part of the previous chunk.
	if fresh && strings.TrimSpace(current) != "" {
		chunks = append(chunks, current)
	}

	return chunks, nil
}

// adaptiveOverlap sizes the carry-over for the window just emitted.
func (c *RecursiveChunker) adaptiveOverlap(window string) int {
	overlap := c.overlap + int(shannonEntropy(window)*50)
	if limit := c.chunkSize / 3; overlap > limit {
		overlap = limit
	}
	return overlap
}

// shannonEntropy returns the entropy in bits of the character
// distribution of s.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	var h float64
	n := float64(total)
	for _, count := range freq {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}

// presplit coarsely segments text before sentence scanning. Pieces
// longer than chunkSize are split again with the next separator, so
// pathological inputs without punctuation still break down.
func presplit(text string, separators []string, chunkSize int) []string {
	if len(separators) == 0 || len(text) <= chunkSize {
		return []string{text}
	}
	var out []string
	for _, piece := range strings.Split(text, separators[0]) {
		if piece == "" {
			continue
		}
		if len(piece) > chunkSize {
			out = append(out, presplit(piece, separators[1:], chunkSize)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

// splitSentences cuts after terminal punctuation followed by
// whitespace, consuming the whitespace run. The punctuation stays
// attached to its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && i > start && isSentenceTerminal(text[i-1]) {
			out = append(out, text[start:i])
			j := i + size
			for j < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += s2
			}
			start = j
			i = j
			continue
		}
		i += size
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSentenceTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// tail returns the trailing n bytes of s, widened left if needed so
// the cut lands on a rune boundary.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	i := len(s) - n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[i:]
}
