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
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/llms"
	"github.com/kadirpekel/vectra/pkg/loader"
)

// Processor turns loaded documents into chunks with positional
// metadata: byte offsets, page ranges for paged formats, and the
// enclosing markdown section for flat text.
type Processor struct {
	chunker Chunker
}

// NewProcessor builds the processor for the configured chunking
// strategy. The backend is only consulted for agentic chunking; pass
// nil otherwise.
func NewProcessor(cfg config.ChunkingConfig, agenticBackend llms.Backend) *Processor {
	var chunker Chunker
	if cfg.Strategy == config.ChunkingAgentic && agenticBackend != nil {
		chunker = NewAgenticChunker(cfg, agenticBackend)
	} else {
		chunker = NewRecursiveChunker(cfg)
	}
	return &Processor{chunker: chunker}
}

// Process chunks a loaded document and computes per-chunk metadata.
// The two returned slices are parallel.
func (p *Processor) Process(ctx context.Context, path string, doc *loader.Result) ([]Chunk, []ChunkMetadata, error) {
	texts, err := p.chunker.Chunk(ctx, doc.Text)
	if err != nil {
		return nil, nil, err
	}
	if len(texts) == 0 {
		return nil, nil, nil
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	title := docTitle(path)
	paged := len(doc.Pages) > 0

	var headings []headingMark
	if !paged {
		headings = headingIndex(doc.Text)
	}

	chunks := make([]Chunk, len(texts))
	metas := make([]ChunkMetadata, len(texts))

	cursor := 0
	for i, text := range texts {
		start, end := 0, len(text)
		if idx := strings.Index(doc.Text[cursor:], text); idx >= 0 {
			start = cursor + idx
			end = start + len(text)
			cursor = end
		}
		// A miss keeps position 0 and leaves the cursor alone:
		// reassembled chunks may not occur verbatim in the source.

		sum := sha256.Sum256([]byte(text))
		chunks[i] = Chunk{
			Content: text,
			Start:   start,
			End:     end,
			Index:   i,
			SHA256:  hex.EncodeToString(sum[:]),
		}

		meta := ChunkMetadata{
			FileType:   fileType,
			DocTitle:   title,
			ChunkIndex: i,
			PageFrom:   1,
			PageTo:     1,
		}
		if paged {
			meta.PageFrom, meta.PageTo = pageRange(doc.Pages, start, end)
		} else {
			meta.Section = sectionAt(headings, start)
		}
		metas[i] = meta
	}

	return chunks, metas, nil
}

// docTitle derives a human-readable title from the file name.
func docTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// pageRange maps byte offsets in the joined page text to 1-based page
// numbers by walking cumulative page lengths. Offsets beyond the last
// page clamp to it; both results are at least 1.
func pageRange(pages []string, start, end int) (int, int) {
	pageFrom, pageTo := 0, 0
	cum := 0
	for i, page := range pages {
		cum += len(page)
		if i < len(pages)-1 {
			cum += len(loader.PageSeparator)
		}
		if pageFrom == 0 && start < cum {
			pageFrom = i + 1
		}
		if pageTo == 0 && end <= cum {
			pageTo = i + 1
		}
		if pageFrom != 0 && pageTo != 0 {
			break
		}
	}
	if pageFrom == 0 {
		pageFrom = len(pages)
	}
	if pageTo == 0 {
		pageTo = len(pages)
	}
	if pageFrom < 1 {
		pageFrom = 1
	}
	if pageTo < pageFrom {
		pageTo = pageFrom
	}
	return pageFrom, pageTo
}

var headingLine = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

// headingMark is a markdown heading and its byte offset.
type headingMark struct {
	offset int
	text   string
}

// headingIndex collects markdown headings in document order.
func headingIndex(text string) []headingMark {
	matches := headingLine.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	marks := make([]headingMark, 0, len(matches))
	for _, m := range matches {
		marks = append(marks, headingMark{
			offset: m[0],
			text:   strings.TrimSpace(text[m[2]:m[3]]),
		})
	}
	return marks
}

// sectionAt returns the most recent heading at or before offset.
func sectionAt(marks []headingMark, offset int) string {
	section := ""
	for _, m := range marks {
		if m.offset > offset {
			break
		}
		section = m.text
	}
	return section
}
